package notifications

import (
	"errors"
	"testing"
)

type recordingPublisher struct {
	published []Notification
}

func (p *recordingPublisher) Publish(notification Notification) {
	p.published = append(p.published, notification)
}

func TestSubmitRejectsUnknownUser(t *testing.T) {
	store, _ := openTestStore(t)
	publisher := &recordingPublisher{}
	service, err := NewService(ServiceConfig{Store: store, Publisher: publisher})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	_, err = service.Submit(999, "nobody home")
	if !errors.Is(err, ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
	if len(publisher.published) != 0 {
		t.Fatal("expected nothing published for rejected submission")
	}

	backlog, err := store.UnacknowledgedFor(999, 50)
	if err != nil {
		t.Fatalf("backlog fetch failed: %v", err)
	}
	if len(backlog) != 0 {
		t.Fatal("expected nothing persisted for rejected submission")
	}
}

func TestSubmitPersistsAndPublishes(t *testing.T) {
	store, _ := openTestStore(t)
	user := createTestUser(t, store)
	publisher := &recordingPublisher{}
	service, err := NewService(ServiceConfig{Store: store, Publisher: publisher})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	notification, err := service.Submit(user.ID, "hello")
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if notification.ID == 0 {
		t.Fatal("expected store-assigned notification id")
	}

	if len(publisher.published) != 1 || publisher.published[0].ID != notification.ID {
		t.Fatalf("expected the persisted notification to be published, got %v", publisher.published)
	}

	backlog, err := store.UnacknowledgedFor(user.ID, 50)
	if err != nil {
		t.Fatalf("backlog fetch failed: %v", err)
	}
	if len(backlog) != 1 || backlog[0].ID != notification.ID {
		t.Fatalf("expected the notification in the backlog, got %v", backlog)
	}
}

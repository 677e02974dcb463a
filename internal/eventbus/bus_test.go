package eventbus

import "testing"

func TestPublishFanout(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: ReminderCreated, Data: ReminderEvent{ID: 1, Owner: 2}})

	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Type != ReminderCreated {
			t.Fatalf("type = %q", e.Type)
		}
		if e.Time.IsZero() {
			t.Fatal("publish should stamp the time")
		}
		if ev, ok := e.Data.(ReminderEvent); !ok || ev.ID != 1 {
			t.Fatalf("data = %#v", e.Data)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: ReminderFired})
	b.Publish(Event{Type: ReminderExpired}) // dropped, must not block

	if e := <-ch; e.Type != ReminderFired {
		t.Fatalf("type = %q", e.Type)
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %q", e.Type)
	default:
	}
	if st := b.Stats(); st.Published != 2 || st.Dropped != 1 || st.Subscribers != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(0)
	unsub()
	unsub()
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed")
	}
	b.Publish(Event{Type: ReminderCancelled})
}

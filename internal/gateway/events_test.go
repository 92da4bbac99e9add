package gateway

import "testing"

func TestMultiPublisherFansOut(t *testing.T) {
	first := newCapturePublisher()
	second := newCapturePublisher()

	m := MultiPublisher{first, second}
	m.Publish(Event{Kind: EventSignIn, IMEI: testIMEI})

	for i, p := range []*capturePublisher{first, second} {
		e := p.next(t)
		if e.Kind != EventSignIn || e.IMEI != testIMEI {
			t.Errorf("publisher %d got %+v, want signin for %s", i, e, testIMEI)
		}
	}
}

func TestMultiPublisherEmpty(t *testing.T) {
	// Must not panic.
	MultiPublisher{}.Publish(Event{Kind: EventHeartbeat, IMEI: testIMEI})
}

package ws

import "testing"

func TestTypedChannel(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{"status event", `{"type":"status_changed","id":"x"}`, "ch:events:status_changed"},
		{"pool event", `{"type":"pool_issued"}`, "ch:events:pool_issued"},
		{"missing type", `{"id":"x"}`, "ch:events"},
		{"not json", `nonsense`, "ch:events"},
	}
	for _, tc := range cases {
		if got := typedChannel([]byte(tc.payload)); got != tc.want {
			t.Errorf("%s: typedChannel = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestIsSubscribed(t *testing.T) {
	c := &client{subs: map[string]bool{"ch:events:pool_issued": true}}

	if !c.isSubscribed("ch:events:pool_issued") {
		t.Fatal("exact subscription did not match")
	}
	if c.isSubscribed("ch:events:status_changed") {
		t.Fatal("unrelated channel matched")
	}
}

func TestIsSubscribed_FirehoseImpliesAllTypes(t *testing.T) {
	c := &client{subs: map[string]bool{"ch:events": true}}

	for _, ch := range []string{"ch:events", "ch:events:pool_issued", "ch:events:offer_filled"} {
		if !c.isSubscribed(ch) {
			t.Fatalf("firehose subscriber missed %q", ch)
		}
	}
}

func TestIsSubscribed_Wildcard(t *testing.T) {
	c := &client{subs: map[string]bool{"ch:events:offer_*": true}}

	if !c.isSubscribed("ch:events:offer_filled") {
		t.Fatal("wildcard did not match offer_filled")
	}
	if !c.isSubscribed("ch:events:offer_cancelled") {
		t.Fatal("wildcard did not match offer_cancelled")
	}
	if c.isSubscribed("ch:events:pool_issued") {
		t.Fatal("wildcard matched outside its prefix")
	}
}

func TestHandleSubscription(t *testing.T) {
	c := &client{subs: map[string]bool{"ch:events": true}}

	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"ch:events:pool_issued"}})
	if !c.subs["ch:events:pool_issued"] {
		t.Fatal("subscribe did not add channel")
	}

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"ch:events"}})
	if c.subs["ch:events"] {
		t.Fatal("unsubscribe did not remove channel")
	}
}

package domain

import "testing"

func TestQueueMetadataSongRequest(t *testing.T) {
	m := QueueMetadata{
		DJID:           "dj-1",
		EventID:        "ev-1",
		Title:          "X",
		Artist:         "Y",
		Cover:          "https://img.example/c.png",
		RequesterEmail: "fan@example.com",
		Amount:         "2.99",
		Currency:       "eur",
	}

	req, err := m.SongRequest()
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if req.Title != "X" || req.Artist != "Y" || req.RequesterEmail != "fan@example.com" {
		t.Fatalf("fields not carried through: %+v", req)
	}
	if req.Amount != 2.99 || req.Currency != "eur" {
		t.Fatalf("amount not parsed: %+v", req)
	}
	// The queue writer owns these; conversion must leave them zero.
	if req.Status != "" || req.Timestamp != 0 || req.Position != 0 {
		t.Fatalf("writer-owned fields must stay zero: %+v", req)
	}
}

func TestQueueMetadataBadAmount(t *testing.T) {
	for _, amount := range []string{"", "free", "2,99"} {
		m := QueueMetadata{Amount: amount}
		if _, err := m.SongRequest(); err == nil {
			t.Fatalf("amount %q: expected an error", amount)
		}
	}
}

func TestQueueMetadataMap(t *testing.T) {
	m := QueueMetadata{DJID: "dj-1", EventID: "ev-1", Amount: "2.99"}
	flat := m.Map()
	if flat["djId"] != "dj-1" || flat["eventId"] != "ev-1" || flat["amount"] != "2.99" {
		t.Fatalf("unexpected map: %v", flat)
	}
	if len(flat) != 8 {
		t.Fatalf("expected all 8 keys present, got %d", len(flat))
	}
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"dj":        RoleDJ,
		"admin":     RoleAdmin,
		"fan":       RoleFan,
		"":          RoleFan,
		"moderator": RoleFan,
	}
	for raw, want := range cases {
		if got := ParseRole(raw); got != want {
			t.Fatalf("ParseRole(%q): expected %q, got %q", raw, want, got)
		}
	}
}

package parse

import (
	"testing"

	"github.com/pfultibot/callpipe/internal/model"
)

func TestParseDiscovery(t *testing.T) {
	text := "[Bean Cabal (CABAL)] 944XTHEzqEB3kkEzUqXGNYNiivaaaaaaaaaaaaaaaaaaaaaaaa Cap: 45.9K"
	pm, ok := Parse(text)
	if !ok {
		t.Fatalf("expected match")
	}
	if pm.MessageType != model.MessageTypeDiscovery {
		t.Fatalf("message_type = %v, want discovery", pm.MessageType)
	}
	if pm.TokenName == nil || *pm.TokenName != "Bean Cabal (CABAL)" {
		t.Fatalf("token_name = %v, want \"Bean Cabal (CABAL)\"", pm.TokenName)
	}
	if pm.EntryCap == nil || *pm.EntryCap != 45900.0 {
		t.Fatalf("entry_cap = %v, want 45900", pm.EntryCap)
	}
	if pm.XGain == nil || *pm.XGain != 1.0 {
		t.Fatalf("x_gain = %v, want 1.0", pm.XGain)
	}
}

func TestParseRegularUpdate(t *testing.T) {
	text := "🎉 2.6x | 💹From 43.7K ↗️ 115.0K within 8m"
	pm, ok := Parse(text)
	if !ok {
		t.Fatalf("expected match")
	}
	if pm.MessageType != model.MessageTypeUpdate {
		t.Fatalf("message_type = %v, want update", pm.MessageType)
	}
	if pm.EntryCap == nil || *pm.EntryCap != 43700.0 {
		t.Fatalf("entry_cap = %v, want 43700", pm.EntryCap)
	}
	if pm.PeakCap == nil || *pm.PeakCap != 115000.0 {
		t.Fatalf("peak_cap = %v, want 115000", pm.PeakCap)
	}
	if pm.VIPX != nil {
		t.Fatalf("vip_x should be nil for regular update")
	}
}

func TestParseVIPUpdate(t *testing.T) {
	text := "🔥 5.4x(6.6x from VIP) | 💹From 43.6K ↗️ 234.1K within 5d"
	pm, ok := Parse(text)
	if !ok {
		t.Fatalf("expected match")
	}
	if pm.VIPX == nil || *pm.VIPX != 6.6 {
		t.Fatalf("vip_x = %v, want 6.6", pm.VIPX)
	}
	if pm.XGain == nil || *pm.XGain != 5.4 {
		t.Fatalf("x_gain = %v, want 5.4", pm.XGain)
	}
}

func TestParseBonding(t *testing.T) {
	pm, ok := Parse("CABAL has bonded to Raydium!")
	if !ok {
		t.Fatalf("expected match")
	}
	if pm.MessageType != model.MessageTypeBonding {
		t.Fatalf("message_type = %v, want bonding", pm.MessageType)
	}
}

func TestParseFallbackLegacy(t *testing.T) {
	text := "$CABAL Entry: 45K MC Peak: 180K MC (4x) VIP"
	pm, ok := Parse(text)
	if !ok {
		t.Fatalf("expected match")
	}
	if pm.TokenName == nil || *pm.TokenName != "CABAL" {
		t.Fatalf("token_name = %v, want CABAL", pm.TokenName)
	}
	if pm.EntryCap == nil || *pm.EntryCap != 45000.0 {
		t.Fatalf("entry_cap = %v, want 45000", pm.EntryCap)
	}
	if pm.PeakCap == nil || *pm.PeakCap != 180000.0 {
		t.Fatalf("peak_cap = %v, want 180000", pm.PeakCap)
	}
	if pm.VIPX == nil || *pm.VIPX != 4.0 {
		t.Fatalf("vip_x = %v, want 4.0", pm.VIPX)
	}
}

func TestParseNoMatch(t *testing.T) {
	if _, ok := Parse("good morning everyone"); ok {
		t.Fatalf("expected no match")
	}
	if _, ok := Parse(""); ok {
		t.Fatalf("expected no match on empty text")
	}
}

func TestConvertMagnitude(t *testing.T) {
	cases := []struct {
		value float64
		unit  string
		want  float64
	}{
		{45.0, "K", 45000.0},
		{1.5, "M", 1500000.0},
		{2.0, "B", 2000000000.0},
		{7.0, "", 7.0},
	}
	for _, c := range cases {
		got := convertMagnitude(c.value, c.unit)
		if got != c.want {
			t.Errorf("convertMagnitude(%v, %q) = %v, want %v", c.value, c.unit, got, c.want)
		}
	}
}

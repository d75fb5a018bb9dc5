package ndpcore

import (
	"net"
	"testing"

	"github.com/ndp6d/ndp6d/pkg/netaddr"
)

func TestSolicitRoundTrip(t *testing.T) {
	taddr := netaddr.MustParse("2001:db8::1")
	hw := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

	frame := EncodeSolicit(taddr, hw)
	sol, err := DecodeSolicit(frame)
	if err != nil {
		t.Fatalf("DecodeSolicit: %v", err)
	}
	if !sol.Target.Equal(taddr) {
		t.Errorf("Target = %s, want %s", sol.Target, taddr)
	}
	if !sol.HasSourceLink {
		t.Fatal("expected source link-layer option")
	}
	if sol.SourceLinkHW.String() != hw.String() {
		t.Errorf("SourceLinkHW = %s, want %s", sol.SourceLinkHW, hw)
	}
}

func TestAdvertRoundTrip(t *testing.T) {
	taddr := netaddr.MustParse("2001:db8::1")
	hw := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}

	frame := EncodeAdvert(taddr, true, true, true, hw)
	adv, err := DecodeAdvert(frame)
	if err != nil {
		t.Fatalf("DecodeAdvert: %v", err)
	}
	if !adv.Target.Equal(taddr) {
		t.Errorf("Target = %s, want %s", adv.Target, taddr)
	}
	if !adv.Router || !adv.Solicited || !adv.Override {
		t.Errorf("flags = %+v, want all true", adv)
	}
	if !adv.HasTargetLink || adv.TargetLinkHW.String() != hw.String() {
		t.Errorf("TargetLinkHW = %v, want %s", adv.TargetLinkHW, hw)
	}
}

func TestAdvertFlagsSurviveIndividually(t *testing.T) {
	taddr := netaddr.MustParse("2001:db8::1")

	frame := EncodeAdvert(taddr, false, false, false, nil)
	adv, err := DecodeAdvert(frame)
	if err != nil {
		t.Fatalf("DecodeAdvert: %v", err)
	}
	if adv.Router || adv.Solicited || adv.Override {
		t.Errorf("flags = %+v, want all false", adv)
	}
}

func TestDecodeSolicitRejectsShortPayload(t *testing.T) {
	if _, err := DecodeSolicit([]byte{135, 0, 0, 0}); err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestDecodeSolicitRejectsWrongType(t *testing.T) {
	taddr := netaddr.MustParse("2001:db8::1")
	frame := EncodeAdvert(taddr, false, true, true, nil)
	if _, err := DecodeSolicit(frame); err == nil {
		t.Fatal("expected error decoding an advert as a solicit")
	}
}

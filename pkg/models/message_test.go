package models

import "testing"

func TestContentValidatePairing(t *testing.T) {
	if err := (Content{Text: "hi"}).Validate(TypeText); err != nil {
		t.Fatalf("text: %v", err)
	}
	if err := (Content{}).Validate(TypeText); err == nil {
		t.Fatalf("empty text accepted")
	}
	if err := (Content{Text: "x"}).Validate(TypeOffer); err == nil {
		t.Fatalf("offer without payload accepted")
	}
	if err := (Content{Offer: &OfferContent{Amount: 1}}).Validate(TypeOffer); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if err := (Content{}).Validate(TypeMedia); err == nil {
		t.Fatalf("media without attachments accepted")
	}
	if err := (Content{Text: "?"}).Validate("carrier-pigeon"); err == nil {
		t.Fatalf("unknown type accepted")
	}
}

func TestHiddenForAndReadBy(t *testing.T) {
	m := Message{
		DeletedFor: []string{"u1"},
		ReadBy:     []ReadReceipt{{ParticipantID: "u2"}},
	}
	if !m.HiddenFor("u1") || m.HiddenFor("u2") {
		t.Fatalf("hidden-for wrong")
	}
	if !m.ReadByParticipant("u2") || m.ReadByParticipant("u1") {
		t.Fatalf("read-by wrong")
	}
}

package main

import (
	"softphone-dialer/internal/calls"
	"softphone-dialer/internal/directory"
)

// seedDemo fills the in-memory directory so a fresh process has something
// to dial. The demo line rejects numbers ending in 0.
func seedDemo(repo *directory.MemoryRepo) {
	repo.Seed(
		calls.Record{
			Name:            "Renewal follow-up",
			PartnerID:       "p-100",
			PartnerName:     "Azure Interior",
			Phone:           "+32 2 290 34 91",
			OpportunityID:   "o-7",
			OpportunityName: "Office furniture renewal",
			Priority:        2,
		},
		calls.Record{
			Name:        "Quote questions",
			PartnerID:   "p-101",
			PartnerName: "Deco Addict",
			Phone:       "+32 10 45 67 80",
			Priority:    1,
		},
		calls.Record{
			Name:        "Intro call",
			PartnerID:   "p-102",
			PartnerName: "Gemini Furniture",
			Phone:       "+1 555 0142",
		},
		calls.Record{
			Name:        "Confirm address",
			PartnerID:   "p-103",
			PartnerName: "Lumber Inc",
		},
	)
	repo.AddContact(directory.Contact{
		Ref:         calls.Ref{Model: calls.RefModelPartner, ID: "p-104"},
		Name:        "Ready Mat",
		PartnerID:   "p-104",
		PartnerName: "Ready Mat",
		Phone:       "+32 475 12 34 56",
	})
}

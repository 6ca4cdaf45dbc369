package memstore

import "github.com/StudioVBG/TALOK-sub014/internal/seed"

// Load copies parsed fixtures into the store.
func (s *Store) Load(fx seed.Fixtures) {
	for _, d := range fx.Documents {
		s.PutDocument(d)
	}
	for _, rec := range fx.Signers {
		s.PutSigner(rec)
	}
	for email, id := range fx.Accounts {
		s.LinkAccount(email, id)
	}
}

package idempotency

import (
	"context"
	"errors"
	"testing"
)

type fakeStore struct {
	rec    *Record
	getErr error
	saveN  int
}

func (f *fakeStore) GetIdempotencyRecord(ctx context.Context, scopeID, actorID, idempotencyKey, endpoint string) (*Record, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.rec, nil
}

func (f *fakeStore) SaveIdempotencyRecord(ctx context.Context, scopeID, actorID, idempotencyKey, endpoint string, rec Record) error {
	f.rec = &rec
	f.saveN++
	return nil
}

const endpoint = "POST /invite/{token}/sign"

func TestReplayNoKeyNoop(t *testing.T) {
	st := &fakeStore{}
	_, replayed, err := Replay(context.Background(), st, Key{ScopeID: "doc_1", ActorID: "a@x.com"}, endpoint)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if replayed {
		t.Fatalf("expected replayed=false without key")
	}
	if err := Save(context.Background(), st, Key{ScopeID: "doc_1"}, endpoint, 200, []byte(`{}`)); err != nil {
		t.Fatalf("save err: %v", err)
	}
	if st.saveN != 0 {
		t.Fatalf("expected no save without key")
	}
}

func TestSaveThenReplayReturnsSamePayload(t *testing.T) {
	st := &fakeStore{}
	k := Key{ScopeID: "doc_1", ActorID: "a@x.com", IdempotencyKey: "k1"}
	body := []byte(`{"status":"signed"}`)

	if err := Save(context.Background(), st, k, endpoint, 200, body); err != nil {
		t.Fatalf("save err: %v", err)
	}
	if st.saveN != 1 {
		t.Fatalf("expected one save, got %d", st.saveN)
	}
	rec, replayed, err := Replay(context.Background(), st, k, endpoint)
	if err != nil {
		t.Fatalf("replay err: %v", err)
	}
	if !replayed || rec.ResponseStatus != 200 || string(rec.ResponseBody) != string(body) {
		t.Fatalf("unexpected replay: replayed=%v rec=%+v", replayed, rec)
	}
}

func TestReplayStoreError(t *testing.T) {
	st := &fakeStore{getErr: errors.New("db down")}
	_, replayed, err := Replay(context.Background(), st, Key{ScopeID: "doc_1", ActorID: "a", IdempotencyKey: "k1"}, endpoint)
	if replayed {
		t.Fatalf("expected replayed=false on error")
	}
	if err == nil {
		t.Fatalf("expected error")
	}
}

package idempotency

import "context"

// Key scopes a client-supplied Idempotency-Key to a document and a signer
// channel so keys cannot collide across invitees.
type Key struct {
	ScopeID        string
	ActorID        string
	IdempotencyKey string
}

type Record struct {
	ResponseStatus int
	ResponseBody   []byte
}

type Store interface {
	GetIdempotencyRecord(ctx context.Context, scopeID, actorID, idempotencyKey, endpoint string) (*Record, error)
	SaveIdempotencyRecord(ctx context.Context, scopeID, actorID, idempotencyKey, endpoint string, rec Record) error
}

func Replay(ctx context.Context, st Store, k Key, endpoint string) (Record, bool, error) {
	if k.IdempotencyKey == "" {
		return Record{}, false, nil
	}
	rec, err := st.GetIdempotencyRecord(ctx, k.ScopeID, k.ActorID, k.IdempotencyKey, endpoint)
	if err != nil {
		return Record{}, false, err
	}
	if rec == nil {
		return Record{}, false, nil
	}
	return *rec, true, nil
}

func Save(ctx context.Context, st Store, k Key, endpoint string, status int, body []byte) error {
	if k.IdempotencyKey == "" {
		return nil
	}
	return st.SaveIdempotencyRecord(ctx, k.ScopeID, k.ActorID, k.IdempotencyKey, endpoint, Record{ResponseStatus: status, ResponseBody: body})
}

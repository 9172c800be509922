package deviceapi

import (
	"context"
	"fmt"
)

// FakeClient is an in-memory implementation for unit tests.
type FakeClient struct {
	ConfigBody []byte
	ConfigErr  error

	// InfoFailures makes the first N Info calls fail with InfoErr
	// (Unreachable when InfoErr is nil).
	InfoFailures int
	InfoErr      error
	InfoResult   Info

	DebugErr error
	SaveErr  error
	LoadErr  error

	// Calls records every invoked operation in order, e.g. "GET /api/info".
	Calls []string
}

func NewFake() *FakeClient {
	return &FakeClient{ConfigBody: []byte(`{"success":true,"boards":[]}`)}
}

// Count returns how many times op was called.
func (f *FakeClient) Count(op string) int {
	n := 0
	for _, c := range f.Calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *FakeClient) Config(ctx context.Context) ([]byte, error) {
	f.Calls = append(f.Calls, "GET "+PathConfig)
	if f.ConfigErr != nil {
		return nil, f.ConfigErr
	}
	out := make([]byte, len(f.ConfigBody))
	copy(out, f.ConfigBody)
	return out, nil
}

func (f *FakeClient) Info(ctx context.Context) (Info, error) {
	f.Calls = append(f.Calls, "GET "+PathInfo)
	if f.InfoFailures > 0 {
		f.InfoFailures--
		if f.InfoErr != nil {
			return Info{}, f.InfoErr
		}
		return Info{}, classified("GET "+PathInfo, Unreachable, fmt.Errorf("connection refused"))
	}
	return f.InfoResult, nil
}

func (f *FakeClient) Debug(ctx context.Context) error {
	f.Calls = append(f.Calls, "GET "+PathDebug)
	return f.DebugErr
}

func (f *FakeClient) SaveOffline(ctx context.Context) error {
	f.Calls = append(f.Calls, "POST "+PathSaveOffline)
	return f.SaveErr
}

func (f *FakeClient) LoadOffline(ctx context.Context) error {
	f.Calls = append(f.Calls, "POST "+PathLoadOffline)
	return f.LoadErr
}

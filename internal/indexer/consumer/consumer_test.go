package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3worlds/aot/internal/ingestion"
	"github.com/3worlds/aot/internal/member"
)

type fakeLoader struct {
	loads map[string][]member.Entry
	err   error
}

func (f *fakeLoader) Load(_ context.Context, name string, entries []member.Entry) error {
	if f.err != nil {
		return f.err
	}
	if f.loads == nil {
		f.loads = make(map[string][]member.Entry)
	}
	f.loads[name] = entries
	return nil
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) error {
	c.calls++
	return nil
}

func encode(t *testing.T, event ingestion.IndexPublished) []byte {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	return data
}

var published = ingestion.IndexPublished{
	Source:   "aot",
	Checksum: "abc",
	Entries: []member.Entry{
		{Package: "au.edu.anu.aot.archetype", Class: "Archetypes", Label: "TYPE"},
		{Package: "au.edu.anu.aot.archetype", Class: "Archetypes", Label: "toString()"},
	},
	PublishedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
}

func TestHandleMessageLoadsAndInvalidates(t *testing.T) {
	loader := &fakeLoader{}
	cache := &countingInvalidator{}
	handle := HandleMessage(loader, cache, nil)

	require.NoError(t, handle(context.Background(), []byte("aot"), encode(t, published)))
	assert.Equal(t, published.Entries, loader.loads["aot"])
	assert.Equal(t, 1, cache.calls)
}

func TestHandleMessageSkipsBadEvents(t *testing.T) {
	loader := &fakeLoader{}
	cache := &countingInvalidator{}
	handle := HandleMessage(loader, cache, nil)

	assert.NoError(t, handle(context.Background(), nil, []byte("{not json")))
	assert.NoError(t, handle(context.Background(), nil, encode(t, ingestion.IndexPublished{Source: "aot"})))
	assert.Empty(t, loader.loads)
	assert.Zero(t, cache.calls)
}

func TestHandleMessageLoadFailure(t *testing.T) {
	boom := errors.New("disk full")
	cache := &countingInvalidator{}
	handle := HandleMessage(&fakeLoader{err: boom}, cache, nil)

	err := handle(context.Background(), []byte("aot"), encode(t, published))
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, cache.calls)
}

func TestHandleMessageWithoutCache(t *testing.T) {
	loader := &fakeLoader{}
	handle := HandleMessage(loader, nil, nil)
	require.NoError(t, handle(context.Background(), nil, encode(t, published)))
	assert.Len(t, loader.loads["aot"], 2)
}

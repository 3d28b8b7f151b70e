package addressee_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/voicetagger/pkg/addressee"
	"github.com/MrWong99/voicetagger/pkg/nlp"
	"github.com/MrWong99/voicetagger/pkg/nlp/mock"
)

func newResolver(a *mock.Annotator, opts ...addressee.Option) *addressee.Resolver {
	return addressee.NewResolver(nlp.NewRecognizer(a), opts...)
}

func TestResolve_PatternShortCircuits(t *testing.T) {
	t.Parallel()

	a := &mock.Annotator{
		Ents: []nlp.Entity{{Text: "Other", Label: nlp.LabelPerson}},
		Toks: []nlp.Token{{Text: "Other", Tag: "NNP"}},
	}
	r := newResolver(a)

	for _, text := range []string{"Hey John", "HEY john, call me", "oh hey Élodie!"} {
		got, err := r.Resolve(context.Background(), text)
		if err != nil {
			t.Fatalf("Resolve(%q): unexpected error: %v", text, err)
		}
		if got.Stage != addressee.StagePattern {
			t.Errorf("Resolve(%q).Stage = %v, want pattern", text, got.Stage)
		}
	}
	got, _ := r.Resolve(context.Background(), "HEY john, call me")
	if got.Name != "john" {
		t.Errorf("Resolve: Name = %q, want %q (case preserved)", got.Name, "john")
	}

	if a.EntitiesCalls() != 0 || a.TokensCalls() != 0 || a.ChunksCalls() != 0 {
		t.Errorf("annotator consulted after pattern hit: entities=%d tokens=%d chunks=%d",
			a.EntitiesCalls(), a.TokensCalls(), a.ChunksCalls())
	}
}

func TestResolve_PatternPriority(t *testing.T) {
	t.Parallel()

	r := newResolver(&mock.Annotator{})
	got, err := r.Resolve(context.Background(), "Hey Sam, this is for Alex")
	if err != nil {
		t.Fatalf("Resolve: unexpected error: %v", err)
	}
	if got.Name != "Sam" {
		t.Errorf("Resolve = %q, want %q", got.Name, "Sam")
	}
}

func TestResolve_FirstPersonEntity(t *testing.T) {
	t.Parallel()

	a := &mock.Annotator{
		Ents: []nlp.Entity{
			{Text: "Acme", Label: nlp.LabelOrg},
			{Text: "Maria", Label: nlp.LabelPerson},
			{Text: "Diego", Label: nlp.LabelPerson},
		},
		Toks: []nlp.Token{{Text: "Zed", Tag: "NNP"}},
	}
	r := newResolver(a)

	got, err := r.Resolve(context.Background(), "I told Maria and Diego about Acme")
	if err != nil {
		t.Fatalf("Resolve: unexpected error: %v", err)
	}
	want := addressee.Result{Name: "Maria", Stage: addressee.StageEntity}
	if got != want {
		t.Errorf("Resolve = %+v, want %+v", got, want)
	}
	if a.TokensCalls() != 0 || a.ChunksCalls() != 0 {
		t.Errorf("fallback consulted after entity hit: tokens=%d chunks=%d", a.TokensCalls(), a.ChunksCalls())
	}
}

func TestResolve_FallbackProperNounFirst(t *testing.T) {
	t.Parallel()

	a := &mock.Annotator{
		Ents:   []nlp.Entity{{Text: "Madrid", Label: nlp.LabelGPE}},
		Toks:   []nlp.Token{{Text: "tell", Tag: "VB"}, {Text: "the", Tag: "DT"}, {Text: "boss", Tag: "NN"}, {Text: "Diego", Tag: "NNP"}},
		Chunks: []string{"the boss", "Diego"},
	}
	r := newResolver(a)

	got, err := r.Resolve(context.Background(), "tell the boss Diego is in Madrid")
	if err != nil {
		t.Fatalf("Resolve: unexpected error: %v", err)
	}
	want := addressee.Result{Name: "Diego", Stage: addressee.StageFallback}
	if got != want {
		t.Errorf("Resolve = %+v, want %+v", got, want)
	}
}

func TestResolve_FallbackChunk(t *testing.T) {
	t.Parallel()

	a := &mock.Annotator{Chunks: []string{"the landlord", "the big old house"}}
	got, err := newResolver(a).Resolve(context.Background(), "remind the landlord about the big old house")
	if err != nil {
		t.Fatalf("Resolve: unexpected error: %v", err)
	}
	if got.Name != "the landlord" || got.Stage != addressee.StageFallback {
		t.Errorf("Resolve = %+v, want the landlord/fallback", got)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	t.Parallel()

	a := &mock.Annotator{}
	r := newResolver(a)

	got, err := r.Resolve(context.Background(), "please call back soon")
	if err != nil {
		t.Fatalf("Resolve: unexpected error: %v", err)
	}
	if got != addressee.NoMatch {
		t.Errorf("Resolve = %+v, want NoMatch", got)
	}
	if got.Found() {
		t.Error("Found() = true for NoMatch")
	}
	if a.EntitiesCalls() != 1 || a.TokensCalls() != 1 || a.ChunksCalls() != 1 {
		t.Errorf("stages not all consulted: entities=%d tokens=%d chunks=%d",
			a.EntitiesCalls(), a.TokensCalls(), a.ChunksCalls())
	}
}

func TestResolve_EmptyText(t *testing.T) {
	t.Parallel()

	a := &mock.Annotator{
		Ents: []nlp.Entity{{Text: "Ghost", Label: nlp.LabelPerson}},
		Toks: []nlp.Token{{Text: "Ghost", Tag: "NNP"}},
	}
	got, err := newResolver(a).Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve(\"\"): unexpected error: %v", err)
	}
	if got != addressee.NoMatch {
		t.Errorf("Resolve(\"\") = %+v, want NoMatch", got)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	t.Parallel()

	a := &mock.Annotator{
		Toks:   []nlp.Token{{Text: "Diego", Tag: "NNP"}},
		Chunks: []string{"Diego"},
	}
	r := newResolver(a)

	first, err1 := r.Resolve(context.Background(), "ask Diego")
	second, err2 := r.Resolve(context.Background(), "ask Diego")
	if err1 != nil || err2 != nil {
		t.Fatalf("Resolve: unexpected errors: %v, %v", err1, err2)
	}
	if first != second {
		t.Errorf("Resolve not idempotent: %+v then %+v", first, second)
	}
}

func TestResolve_FallbackDeduplicates(t *testing.T) {
	t.Parallel()

	a := &mock.Annotator{
		Toks:   []nlp.Token{{Text: "Diego", Tag: "NNP"}},
		Chunks: []string{"Diego"},
	}
	rec := nlp.NewRecognizer(a)

	names, err := rec.ExtractPotentialNames("ask Diego")
	if err != nil {
		t.Fatalf("ExtractPotentialNames: unexpected error: %v", err)
	}
	if len(names) != 1 || names[0] != "Diego" {
		t.Errorf("ExtractPotentialNames = %q, want [Diego]", names)
	}

	got, err := addressee.NewResolver(rec).Resolve(context.Background(), "ask Diego")
	if err != nil {
		t.Fatalf("Resolve: unexpected error: %v", err)
	}
	if got.Name != "Diego" {
		t.Errorf("Resolve = %q, want Diego", got.Name)
	}
}

func TestResolve_RecognizerErrorPropagates(t *testing.T) {
	t.Parallel()

	boom := errors.New("model runtime failure")
	a := &mock.Annotator{EntitiesErr: boom, Toks: []nlp.Token{{Text: "Diego", Tag: "NNP"}}}

	got, err := newResolver(a).Resolve(context.Background(), "ask Diego")
	if !errors.Is(err, boom) {
		t.Fatalf("Resolve: err = %v, want wrapped %v", err, boom)
	}
	if got != addressee.NoMatch {
		t.Errorf("Resolve = %+v on error, want NoMatch", got)
	}
	if a.TokensCalls() != 0 {
		t.Errorf("fallback consulted after entity error: tokens=%d", a.TokensCalls())
	}
}

func TestResolve_NotReadyFailsFast(t *testing.T) {
	t.Parallel()

	rec := nlp.Load(func() (nlp.Annotator, error) { return nil, errors.New("download failed") })
	r := addressee.NewResolver(rec)

	if err := r.Ready(); !errors.Is(err, nlp.ErrNotReady) {
		t.Errorf("Ready() = %v, want ErrNotReady", err)
	}
	// Even a text the pattern stage would match is refused.
	_, err := r.Resolve(context.Background(), "Hey John")
	if !errors.Is(err, nlp.ErrNotReady) {
		t.Fatalf("Resolve: err = %v, want ErrNotReady", err)
	}
}

type stubStrategy struct {
	name  string
	stage addressee.Stage
	out   string
	ok    bool
	calls int
}

func (s *stubStrategy) Name() string           { return s.name }
func (s *stubStrategy) Stage() addressee.Stage { return s.stage }
func (s *stubStrategy) Try(context.Context, string) (string, bool, error) {
	s.calls++
	return s.out, s.ok, nil
}

func TestResolve_WithStrategies(t *testing.T) {
	t.Parallel()

	miss := &stubStrategy{name: "miss", stage: addressee.StagePattern}
	hit := &stubStrategy{name: "hit", stage: addressee.StageFallback, out: "Zoe", ok: true}
	never := &stubStrategy{name: "never", stage: addressee.StageEntity, out: "Nope", ok: true}

	r := newResolver(&mock.Annotator{}, addressee.WithStrategies(miss, hit, never))
	got, err := r.Resolve(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Resolve: unexpected error: %v", err)
	}
	if got.Name != "Zoe" || got.Stage != addressee.StageFallback {
		t.Errorf("Resolve = %+v, want Zoe/fallback", got)
	}
	if miss.calls != 1 || hit.calls != 1 || never.calls != 0 {
		t.Errorf("calls = %d/%d/%d, want 1/1/0", miss.calls, hit.calls, never.calls)
	}
}

func TestStage_String(t *testing.T) {
	t.Parallel()

	tests := map[addressee.Stage]string{
		addressee.StageNone:     "none",
		addressee.StagePattern:  "pattern",
		addressee.StageEntity:   "entity",
		addressee.StageFallback: "fallback",
		addressee.Stage(42):     "Stage(42)",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("Stage(%d).String() = %q, want %q", int(s), got, want)
		}
	}
	if got := addressee.NoMatch.String(); got != "<no match>" {
		t.Errorf("NoMatch.String() = %q", got)
	}
}

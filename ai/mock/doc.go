// Package mock provides test doubles for the ai package.
//
//	mockProvider := mock.NewMockProvider()
//	vec, err := mockProvider.Embedder().EmbedText(ctx, "test")
//
//	// Pin exact vectors to control ranking
//	embedder := mock.NewMockEmbedder().
//	    SetVector("query", []float32{1, 0}).
//	    SetVector("close match", []float32{0.9, 0.1})
//
//	// Inject failures
//	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, errors.New("provider down")
//	}
//
// By default MockEmbedder returns unit vectors derived from an FNV hash of
// the text, so equal texts always embed identically.
package mock

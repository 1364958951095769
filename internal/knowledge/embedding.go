package knowledge

import "math"

// EmbedDim is the dimensionality of the lightweight text embedding.
const EmbedDim = 16

// EmbedText folds a text into a small deterministic embedding: each
// rune's code point (scaled by 255) is added to a dimension chosen by
// position, and the vector is L2-normalized. It is not a semantic
// embedding, but it is stable, dependency-free and good enough to
// cluster related concept names.
func EmbedText(text string) []float32 {
	vec := make([]float32, EmbedDim)
	if text == "" {
		return vec
	}

	i := 0
	for _, r := range text {
		vec[i%EmbedDim] += float32(r%256) / 255
		i++
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

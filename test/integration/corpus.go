// Package integration provides end-to-end tests over real partition files, a
// SQLite metadata store and the HTTP API.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/pulpit/internal/models"
	"github.com/hyperjump/pulpit/internal/partition"
	"github.com/hyperjump/pulpit/internal/vector"
)

// Topics are the sermon themes of the synthetic corpus. Topic i owns dimension i.
var Topics = []string{"faith", "grace", "prayer", "holiness", "healing", "prosperity", "salvation", "worship"}

// Dimensions is the vector dimension of the corpus.
const Dimensions = 8

// Chunk is one synthetic passage.
type Chunk struct {
	Row    int64
	ID     string
	Topic  int
	Vector []float32
	Title  string
	Text   string
}

// Partition is the chunks of one pastor.
type Partition struct {
	Slug   string
	Chunks []Chunk
}

// Corpus holds partitions whose chunks cluster tightly around their topic axis,
// so a query for a topic must rank every on-topic chunk first.
type Corpus struct {
	Partitions []Partition
}

// BuildCorpus returns perTopic chunks per topic for each slug. Rows interleave
// topics so that row order says nothing about relevance.
func BuildCorpus(slugs []string, perTopic int) *Corpus {
	c := &Corpus{}
	for pi, slug := range slugs {
		rng := rand.New(rand.NewSource(int64(pi + 1)))
		p := Partition{Slug: slug}
		var row int64
		for j := 0; j < perTopic; j++ {
			for t, topic := range Topics {
				vec := make([]float32, Dimensions)
				for d := range vec {
					vec[d] = float32(rng.Float64() * 0.2)
				}
				vec[t] = 1
				normalize(vec)
				p.Chunks = append(p.Chunks, Chunk{
					Row:    row,
					ID:     ChunkID(slug, topic, j),
					Topic:  t,
					Vector: vec,
					Title:  fmt.Sprintf("On %s (part %d)", topic, j+1),
					Text:   fmt.Sprintf("%s teaches on %s, passage %d.", slug, topic, j+1),
				})
				row++
			}
		}
		c.Partitions = append(c.Partitions, p)
	}
	return c
}

// ChunkID returns the id of the j-th chunk on topic in slug.
func ChunkID(slug, topic string, j int) string {
	return fmt.Sprintf("%s-%s-%d", slug, topic, j)
}

// TopicOf returns the topic encoded in a chunk id.
func TopicOf(chunkID string) string {
	parts := strings.Split(chunkID, "-")
	if len(parts) < 3 {
		return ""
	}
	return parts[len(parts)-2]
}

// TopicVector returns the axis vector of topic t.
func TopicVector(t int) []float32 {
	vec := make([]float32, Dimensions)
	vec[t] = 1
	return vec
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range vec {
		vec[i] *= inv
	}
}

// WriteFiles writes each partition as an inner-product flat index plus id-map.
// Slugs in arrayEncoded get an array id-map, the rest an object id-map.
func (c *Corpus) WriteFiles(indexDir, mapDir string, arrayEncoded map[string]bool) error {
	for _, p := range c.Partitions {
		if err := p.WriteFiles(indexDir, mapDir, arrayEncoded[p.Slug]); err != nil {
			return err
		}
	}
	return nil
}

// WriteFiles writes the partition's index and id-map files.
func (p Partition) WriteFiles(indexDir, mapDir string, array bool) error {
	idx, err := vector.NewFlatIndex(Dimensions, vector.MetricInnerProduct)
	if err != nil {
		return err
	}
	vecs := make([][]float32, len(p.Chunks))
	for i, ch := range p.Chunks {
		vecs[i] = ch.Vector
	}
	if err := idx.Add(vecs); err != nil {
		return err
	}
	if err := idx.Save(filepath.Join(indexDir, p.Slug+partition.DefaultIndexExt)); err != nil {
		return err
	}
	mapPath := filepath.Join(mapDir, p.Slug+partition.MapExt)
	if !array {
		ids := make(map[int64]string, len(p.Chunks))
		for _, ch := range p.Chunks {
			ids[ch.Row] = ch.ID
		}
		return partition.WriteIDMapFile(mapPath, ids)
	}
	ids := make([]string, len(p.Chunks))
	for _, ch := range p.Chunks {
		ids[ch.Row] = ch.ID
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(mapDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(mapPath, data, 0644)
}

// Records returns the metadata rows of every chunk.
func (c *Corpus) Records() []*models.ChunkRecord {
	var rows []*models.ChunkRecord
	for _, p := range c.Partitions {
		for _, ch := range p.Chunks {
			words := len(strings.Fields(ch.Text))
			rows = append(rows, &models.ChunkRecord{
				ChunkID:    ch.ID,
				Chunk:      models.StringPtr(ch.Text),
				Title:      models.StringPtr(ch.Title),
				SourceURL:  models.StringPtr("https://sermons.example.org/" + p.Slug),
				WordCount:  models.IntPtr(words),
				CharCount:  models.IntPtr(len(ch.Text)),
				PastorSlug: models.StringPtr(p.Slug),
			})
		}
	}
	return rows
}

// TopicEmbedder embeds a query as the axis of the first topic word it contains,
// scaled so that callers must normalize it. Text without a topic word maps to
// the all-ones vector.
type TopicEmbedder struct{}

// Embed implements embedding.Embedder.
func (TopicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	lower := strings.ToLower(text)
	for t, topic := range Topics {
		if strings.Contains(lower, topic) {
			vec := TopicVector(t)
			vec[t] = 3
			return vec, nil
		}
	}
	vec := make([]float32, Dimensions)
	for i := range vec {
		vec[i] = 1
	}
	return vec, nil
}

// EmbedBatch implements embedding.Embedder.
func (e TopicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions implements embedding.Embedder.
func (TopicEmbedder) Dimensions() int { return Dimensions }

// Close implements embedding.Embedder.
func (TopicEmbedder) Close() error { return nil }

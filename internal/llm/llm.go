// Package llm adapts Gemini inference to the pipeline's three operations:
// embedding, cluster scoring, and rewriting.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"google.golang.org/genai"

	"newsdesk/internal/core"
)

const (
	// DefaultModel is the default Gemini model for scoring and rewriting.
	DefaultModel = "gemini-flash-lite-latest"
	// DefaultEmbeddingModel is the default model for generating embeddings.
	DefaultEmbeddingModel = "gemini-embedding-001"
	// DefaultEmbeddingDimensions is the output dimension for embeddings (Matryoshka).
	DefaultEmbeddingDimensions = int32(768)

	// maxEmbedChars caps embedding input; conservative for gemini-embedding-001.
	maxEmbedChars = 8000
	// maxClusterChars caps the joined article text sent for scoring/rewriting.
	maxClusterChars = 24000
)

// Validation floors for rewrite output. Rewrites below these are rejected
// without retry.
const (
	MinRewriteTitleLen   = 5
	MinRewriteContentLen = 50
)

// Client is a Gemini-backed inference adapter.
type Client struct {
	modelName      string
	embeddingModel string
	gClient        *genai.Client
}

// NewClient creates a new inference client. The API key is read from
// GEMINI_API_KEY or the gemini.api_key configuration value.
func NewClient(modelName string) (*Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = viper.GetString("gemini.api_key")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required: set GEMINI_API_KEY or gemini.api_key in the config file")
	}

	if modelName == "" {
		modelName = viper.GetString("gemini.model")
		if modelName == "" {
			modelName = DefaultModel
		}
	}
	embeddingModel := viper.GetString("gemini.embedding_model")
	if embeddingModel == "" {
		embeddingModel = DefaultEmbeddingModel
	}

	ctx := context.Background()
	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Client{
		modelName:      modelName,
		embeddingModel: embeddingModel,
		gClient:        gClient,
	}, nil
}

// Name identifies this backend in fallback chains.
func (c *Client) Name() string {
	return "gemini/" + c.modelName
}

// ModelName returns the generation model in use.
func (c *Client) ModelName() string {
	return c.modelName
}

// Embed generates an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if len(text) > maxEmbedChars {
		text = text[:maxEmbedChars]
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: text}},
		Role:  "user",
	}}
	dims := DefaultEmbeddingDimensions
	config := &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	}

	resp, err := c.gClient.Models.EmbedContent(ctx, c.embeddingModel, contents, config)
	if err != nil {
		return nil, normalizeError(err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("no embedding values returned from API")
	}

	values := resp.Embeddings[0].Values
	embedding := make([]float64, len(values))
	for i, v := range values {
		embedding[i] = float64(v)
	}
	return embedding, nil
}

// scorePayload is the structured scoring response.
type scorePayload struct {
	Score            float64 `json:"score"`
	RepresentativeID string  `json:"representative_id"`
}

// ScoreCluster rates the newsworthiness of a cluster's articles on a 0-10
// scale and picks the article that best represents the story.
func (c *Client) ScoreCluster(ctx context.Context, articles []core.Article) (core.ClusterScore, error) {
	if len(articles) == 0 {
		return core.ClusterScore{}, fmt.Errorf("no articles to score")
	}

	prompt := buildScoringPrompt(articles)
	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"score":             {Type: genai.TypeNumber, Description: "Newsworthiness from 0 to 10"},
			"representative_id": {Type: genai.TypeString, Description: "ID of the most representative article"},
		},
		Required: []string{"score", "representative_id"},
	}

	raw, err := c.generateJSON(ctx, prompt, schema)
	if err != nil {
		return core.ClusterScore{}, err
	}

	var payload scorePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return core.ClusterScore{}, fmt.Errorf("failed to parse scoring response: %w", err)
	}
	if payload.Score < 0 {
		payload.Score = 0
	}
	if payload.Score > 10 {
		payload.Score = 10
	}
	if !articleIDExists(articles, payload.RepresentativeID) {
		// The model occasionally invents an id; fall back to the first article.
		payload.RepresentativeID = articles[0].ID
	}

	return core.ClusterScore{Score: payload.Score, RepresentativeID: payload.RepresentativeID}, nil
}

// Rewrite synthesizes a publishable document from a cluster's source
// articles. Returns nil (without error) when the model's output fails the
// minimum-quality validation.
func (c *Client) Rewrite(ctx context.Context, articles []core.Article) (*core.Rewrite, error) {
	if len(articles) == 0 {
		return nil, fmt.Errorf("no articles to rewrite")
	}

	prompt := buildRewritePrompt(articles)
	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":    {Type: genai.TypeString, Description: "Neutral, informative headline"},
			"content":  {Type: genai.TypeString, Description: "Full synthesized article"},
			"tldr":     {Type: genai.TypeString, Description: "Two-sentence abstract"},
			"impact":   {Type: genai.TypeString, Description: "Who is affected and how"},
			"category": {Type: genai.TypeString, Description: "One-word category"},
		},
		Required: []string{"title", "content", "tldr"},
	}

	raw, err := c.generateJSON(ctx, prompt, schema)
	if err != nil {
		return nil, err
	}

	var rw core.Rewrite
	if err := json.Unmarshal([]byte(raw), &rw); err != nil {
		return nil, fmt.Errorf("failed to parse rewrite response: %w", err)
	}
	if !ValidRewrite(&rw) {
		return nil, nil
	}
	return &rw, nil
}

// ValidRewrite reports whether a rewrite clears the minimum-quality bar: a
// non-trivial title and enough content to publish.
func ValidRewrite(rw *core.Rewrite) bool {
	if rw == nil {
		return false
	}
	return len(strings.TrimSpace(rw.Title)) > MinRewriteTitleLen &&
		len(strings.TrimSpace(rw.Content)) > MinRewriteContentLen
}

func (c *Client) generateJSON(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.modelName, contents, config)
	if err != nil {
		return "", normalizeError(err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}

func buildScoringPrompt(articles []core.Article) string {
	var b strings.Builder
	b.WriteString("You are a news editor rating how newsworthy a story is.\n")
	b.WriteString("The following articles all cover the same story. Rate the story's relevance from 0 (noise) to 10 (major news), and pick the id of the single article that represents it best.\n\n")
	writeArticleDigest(&b, articles)
	return b.String()
}

func buildRewritePrompt(articles []core.Article) string {
	var b strings.Builder
	b.WriteString("You are a news editor synthesizing one publishable article from several source reports of the same story.\n")
	b.WriteString("Write a neutral, self-contained piece. Do not copy any single source verbatim. Include a short tldr, an impact note on who is affected, and a one-word category.\n\n")
	writeArticleDigest(&b, articles)
	return b.String()
}

func writeArticleDigest(b *strings.Builder, articles []core.Article) {
	remaining := maxClusterChars
	for i, a := range articles {
		if remaining <= 0 {
			break
		}
		content := a.Content
		if len(content) > remaining {
			content = content[:remaining]
		}
		remaining -= len(content)
		fmt.Fprintf(b, "--- Source %d ---\nid: %s\nsource: %s\ntitle: %s\npublished: %s\n%s\n\n",
			i+1, a.ID, a.SourceName, a.Title, a.PublishedAt.Format("2006-01-02 15:04"), content)
	}
}

func articleIDExists(articles []core.Article, id string) bool {
	for _, a := range articles {
		if a.ID == id {
			return true
		}
	}
	return false
}

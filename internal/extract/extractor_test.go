package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModel struct {
	reply   string
	err     error
	prompts []string
	images  []Image
}

func (m *stubModel) Generate(_ context.Context, prompt string, img Image) (string, error) {
	m.prompts = append(m.prompts, prompt)
	m.images = append(m.images, img)
	return m.reply, m.err
}

func TestExtract_Success(t *testing.T) {
	m := &stubModel{reply: "```json\n" + indomaret + "\n```"}
	x := New(m)

	rec, err := x.Extract(context.Background(), Image{Name: "nota.jpg", Data: []byte{0xff, 0xd8, 0xff}, MIMEType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, indomaretReceipt(), rec)
	require.Len(t, m.prompts, 1)
	assert.Equal(t, x.Prompt(), m.prompts[0])
}

func TestExtract_BlurryImage(t *testing.T) {
	m := &stubModel{reply: "I'm sorry, the picture is too blurry to read."}
	_, err := New(m).Extract(context.Background(), Image{Data: []byte("img")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreadable))
	assert.Contains(t, UserMessage(err), "buram")
}

func TestExtract_ModelCallFailure(t *testing.T) {
	m := &stubModel{err: errors.New("connection reset")}
	_, err := New(m).Extract(context.Background(), Image{Data: []byte("img")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelCall))
	assert.Contains(t, err.Error(), "connection reset")
	assert.Len(t, m.prompts, 1, "no retries")
}

func TestExtract_EmptyImage(t *testing.T) {
	m := &stubModel{reply: indomaret}
	_, err := New(m).Extract(context.Background(), Image{})
	assert.True(t, errors.Is(err, ErrUnreadable))
	assert.Empty(t, m.prompts)
}

func TestExtract_NoModel(t *testing.T) {
	_, err := New(nil).Extract(context.Background(), Image{Data: []byte("x")})
	assert.True(t, errors.Is(err, ErrModelCall))
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(nil)
	for _, c := range []string{"Fashion", "Food & Drink", "Household"} {
		assert.Contains(t, p, "- "+c+"\n")
	}
	assert.Contains(t, p, `{"error": "<short reason>"}`)

	custom := New(&stubModel{}, WithCategories([]string{"Pets"})).Prompt()
	assert.Contains(t, custom, "- Pets\n")
	assert.False(t, strings.Contains(custom, "- Fashion\n"))
}

func TestErrorIs(t *testing.T) {
	err := &Error{Kind: KindNoItems}
	assert.True(t, errors.Is(err, ErrNoItems))
	assert.False(t, errors.Is(err, ErrInvalidShape))
	assert.Equal(t, "boom", UserMessage(errors.New("boom")))
	assert.Equal(t, "Model tidak bisa membaca nota ini: x", (&Error{Kind: KindModelRejected, Message: "x"}).UserMessage())
}

func TestImageDetectedMIME(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	assert.Equal(t, "image/png", Image{Data: png}.DetectedMIME())
	assert.Equal(t, "image/png", Image{Data: png, MIMEType: "application/octet-stream"}.DetectedMIME())
	assert.Equal(t, "image/webp", Image{MIMEType: "image/webp"}.DetectedMIME())
}

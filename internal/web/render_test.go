package web

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutorchat/internal/models"
)

func TestRenderer_MarkdownSanitizes(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	html := string(r.Markdown("**bold**\n\n```go\nfmt.Println(1)\n```\n\n<script>alert(1)</script>"))

	assert.Contains(t, html, "<strong>bold</strong>")
	assert.Contains(t, html, "<pre><code")
	assert.NotContains(t, html, "<script>")
}

func TestRenderer_RenderChat(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	sess := models.NewSession(uuid.New())
	sess.Initialize()
	sess.Append(models.RoleUser, "<b>raw</b> user text")
	sess.Append(models.RoleAssistant, "Use a `for` loop.")

	var buf bytes.Buffer
	require.NoError(t, r.RenderChat(&buf, ChatPage{Session: sess, Error: "Sorry, try again.", Draft: "draft text"}))
	out := buf.String()

	assert.Contains(t, out, models.Greeting)
	assert.Contains(t, out, "&lt;b&gt;raw&lt;/b&gt; user text")
	assert.Contains(t, out, "<code>for</code>")
	assert.Contains(t, out, "Sorry, try again.")
	assert.Contains(t, out, `value="draft text"`)
	assert.Contains(t, out, `max="2"`)
	assert.Equal(t, 4, strings.Count(out, `class="message `))
}

func TestStatic_ServesAssets(t *testing.T) {
	rr := httptest.NewRecorder()
	Static().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/chat.js", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "WebSocket")
}

// The server sends the current session on connect; reloading on that
// frame would reload the page forever.
func TestStatic_ChatScriptSkipsConnectFrame(t *testing.T) {
	rr := httptest.NewRecorder()
	Static().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/chat.js", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	js := rr.Body.String()
	guard := strings.Index(js, "primed = true")
	reload := strings.Index(js, "location.reload()")
	require.NotEqual(t, -1, guard)
	require.NotEqual(t, -1, reload)
	assert.Less(t, guard, reload)
}

package tooling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cnap-oss/actorflow/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoParams struct {
	X string `json:"x" jsonschema:"required,description=Text to echo"`
}

func newEcho() Tool {
	return NewTextFunc("echo", "Echo the input", func(_ context.Context, p echoParams) (string, error) {
		return p.X, nil
	})
}

func TestNewFunc_SchemaAndInvoke(t *testing.T) {
	echo := newEcho()

	var schema map[string]any
	require.NoError(t, json.Unmarshal(echo.Schema(), &schema))
	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "x")
	assert.Equal(t, []any{"x"}, schema["required"])

	res, err := echo.Invoke(context.Background(), json.RawMessage(`{"x":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Text)
	assert.False(t, res.IsMedia())
}

func TestNewFunc_InvalidArguments(t *testing.T) {
	_, err := newEcho().Invoke(context.Background(), json.RawMessage(`{"x":`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid arguments for tool echo")
}

func TestResults(t *testing.T) {
	assert.Equal(t, "a�b", BytesResult([]byte{'a', 0xff, 'b'}).Text)

	img := ImageResult([]byte("png"), "image/png")
	require.True(t, img.IsMedia())
	assert.Equal(t, models.PartTypeImageURL, img.Media.Type)
	assert.Equal(t, "data:image/png;base64,cG5n", img.Media.ImageURL.URL)
	assert.Equal(t, *img.Media, img.Value())
}

func TestToolset_Schemas(t *testing.T) {
	ts, err := NewToolset(newEcho())
	require.NoError(t, err)

	schemas, err := ts.Schemas(nil)
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	assert.Equal(t, "function", schemas[0].Type)
	assert.Equal(t, "echo", schemas[0].Function.Name)

	_, err = ts.Schemas(map[string]Tool{"echo": newEcho()})
	assert.Error(t, err)

	empty, err := NewToolset()
	require.NoError(t, err)
	schemas, err = empty.Schemas(nil)
	require.NoError(t, err)
	assert.Nil(t, schemas)
}

func TestToolset_DuplicateName(t *testing.T) {
	_, err := NewToolset(newEcho(), newEcho())
	assert.Error(t, err)
}

type recordingCompleter struct {
	reason *string
	called bool
}

func (r *recordingCompleter) SetTaskComplete(reason *string) {
	r.called = true
	r.reason = reason
}

func TestCommandTool(t *testing.T) {
	tests := []struct {
		name    string
		spec    CommandSpec
		args    string
		want    string
		wantErr string
	}{
		{
			name: "echo argument",
			spec: CommandSpec{
				Name:      "say",
				Command:   "echo {{ what }}",
				Arguments: []Argument{{Name: "what", Description: "text"}},
			},
			args: `{"what":"hello world"}`,
			want: "hello world\n",
		},
		{
			name: "argument is quoted",
			spec: CommandSpec{
				Name:      "say",
				Command:   "echo {{what}}",
				Arguments: []Argument{{Name: "what"}},
			},
			args: `{"what":"it's; rm -rf /"}`,
			want: "it's; rm -rf /\n",
		},
		{
			name: "missing argument",
			spec: CommandSpec{
				Name:      "say",
				Command:   "echo {{ what }}",
				Arguments: []Argument{{Name: "what"}},
			},
			args:    `{}`,
			wantErr: "missing arguments: what",
		},
		{
			name:    "failing command",
			spec:    CommandSpec{Name: "fail", Command: "echo boom >&2; exit 3"},
			wantErr: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tool, err := NewCommandTool(tt.spec)
			require.NoError(t, err)

			res, err := tool.Invoke(context.Background(), json.RawMessage(tt.args))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Text)
		})
	}
}

func TestCommandTool_Validation(t *testing.T) {
	_, err := NewCommandTool(CommandSpec{Name: "x", Command: "echo {{ y }}"})
	assert.Error(t, err)

	_, err = NewCommandTool(CommandSpec{Name: "x", Command: "cat", Mime: "text/html"})
	assert.Error(t, err)

	_, err = NewCommandTool(CommandSpec{Name: "x"})
	assert.Error(t, err)
}

func TestCommandTool_CompleteTask(t *testing.T) {
	completer := &recordingCompleter{}
	tool, err := NewCommandTool(CommandSpec{
		Name:         "finish",
		Command:      "printf done",
		CompleteTask: true,
	}, WithCompleter(completer))
	require.NoError(t, err)

	_, err = tool.Invoke(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, completer.called)
	require.NotNil(t, completer.reason)
	assert.Equal(t, "done", *completer.reason)
}

func TestCommandTool_Schema(t *testing.T) {
	tool, err := NewCommandTool(CommandSpec{
		Name:      "say",
		Command:   "echo {{ what }}",
		Arguments: []Argument{{Name: "what", Description: "text", Example: "hi"}},
	})
	require.NoError(t, err)

	var schema struct {
		Type       string `json:"type"`
		Properties map[string]struct {
			Type     string `json:"type"`
			Examples []any  `json:"examples"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	require.NoError(t, json.Unmarshal(tool.Schema(), &schema))
	assert.Equal(t, "object", schema.Type)
	assert.Equal(t, "string", schema.Properties["what"].Type)
	assert.Equal(t, []any{"hi"}, schema.Properties["what"].Examples)
	assert.Equal(t, []string{"what"}, schema.Required)
}

func TestRemoteTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req remoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		switch req.Name {
		case "lookup":
			_, _ = w.Write([]byte(`{"content":"found"}`))
		default:
			_, _ = w.Write([]byte(`{"content":"nope","is_error":true}`))
		}
	}))
	defer srv.Close()

	tool, err := NewRemoteTool(RemoteSpec{Name: "lookup", URL: srv.URL})
	require.NoError(t, err)
	res, err := tool.Invoke(context.Background(), json.RawMessage(`{"q":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "found", res.Text)

	other, err := NewRemoteTool(RemoteSpec{Name: "other", URL: srv.URL})
	require.NoError(t, err)
	_, err = other.Invoke(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, "nope", err.Error())
}

func TestRemoteTool_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "broken", http.StatusBadGateway)
	}))
	defer srv.Close()

	tool, err := NewRemoteTool(RemoteSpec{Name: "x", URL: srv.URL})
	require.NoError(t, err)
	_, err = tool.Invoke(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "502"))
}

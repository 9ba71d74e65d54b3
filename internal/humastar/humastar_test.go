package humastar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginationLinks(t *testing.T) {
	tests := []struct {
		name string
		page PageBody[int]
		want []string
	}{
		{
			name: "first page",
			page: PageBody[int]{Total: 5, Offset: 0, Limit: 2},
			want: []string{
				`</l?offset=0&limit=2>; rel="first"`,
				`</l?offset=2&limit=2>; rel="next"`,
				`</l?offset=4&limit=2>; rel="last"`,
			},
		},
		{
			name: "middle page",
			page: PageBody[int]{Total: 5, Offset: 2, Limit: 2},
			want: []string{
				`</l?offset=0&limit=2>; rel="first"`,
				`</l?offset=0&limit=2>; rel="prev"`,
				`</l?offset=4&limit=2>; rel="next"`,
				`</l?offset=4&limit=2>; rel="last"`,
			},
		},
		{
			name: "empty",
			page: PageBody[int]{Total: 0, Offset: 0, Limit: 20},
			want: []string{
				`</l?offset=0&limit=20>; rel="first"`,
				`</l?offset=0&limit=20>; rel="last"`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.page.PaginationLinks("/l"))
		})
	}
}

func TestActionsFor(t *testing.T) {
	actions := ActionsFor("abc", []ActionDef{
		{Rel: "delete", Pattern: "/api/v1/layers/%s", Method: "DELETE", Title: "Remove layer"},
		{Rel: "zoom", Pattern: "/api/v1/layers/%s/zoom", Method: "POST"},
	})
	require.Len(t, actions, 2)
	assert.Equal(t, `</api/v1/layers/abc>; rel="delete"; method="DELETE"; title="Remove layer"`, actions[0].LinkHeader())
	assert.Equal(t, `</api/v1/layers/abc/zoom>; rel="zoom"; method="POST"`, actions[1].LinkHeader())
}

func TestParseSignals(t *testing.T) {
	s, err := ParseSignals([]byte(`{"layername":"parks","renaming":"","n":3}`))
	require.NoError(t, err)
	assert.Equal(t, "parks", s.String("layername"))
	assert.Equal(t, "", s.String("n"))
	assert.True(t, s.Has("renaming"))
	assert.False(t, s.Has("missing"))

	_, err = ParseSignals([]byte(`not json`))
	assert.Error(t, err)
}

func TestParseLinkHeader(t *testing.T) {
	rel, href := parseLinkHeader(`</api/v1/layers>; rel="collection"`)
	assert.Equal(t, "collection", rel)
	assert.Equal(t, "/api/v1/layers", href)

	rel, _ = parseLinkHeader("garbage")
	assert.Empty(t, rel)
}

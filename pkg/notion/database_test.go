package notion

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestQueryAll_Paginates(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == ""
	})).Return(&notionapi.DatabaseQueryResponse{
		Results:    []notionapi.Page{{ID: "p1"}},
		HasMore:    true,
		NextCursor: "cursor-2",
	}, nil).Once()
	mc.On("QueryDatabase", ctx, "db-1", mock.MatchedBy(func(req *notionapi.DatabaseQueryRequest) bool {
		return req.StartCursor == "cursor-2" && req.PageSize == 50
	})).Return(&notionapi.DatabaseQueryResponse{
		Results: []notionapi.Page{{ID: "p2"}, {ID: "p3"}},
	}, nil).Once()

	pages, err := QueryAll(ctx, mc, "db-1", &notionapi.DatabaseQueryRequest{PageSize: 50})
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, notionapi.ObjectID("p3"), pages[2].ID)
	mc.AssertExpectations(t)
}

func TestQueryAll_Error(t *testing.T) {
	mc := new(MockClient)
	mc.On("QueryDatabase", mock.Anything, "db-1", mock.Anything).Return(nil, assert.AnError).Once()

	pages, err := QueryAll(context.Background(), mc, "db-1", nil)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, pages)
}

func TestQueryAll_Cancelled(t *testing.T) {
	mc := new(MockClient)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := QueryAll(ctx, mc, "db-1", nil)
	assert.ErrorIs(t, err, context.Canceled)
	mc.AssertNotCalled(t, "QueryDatabase", mock.Anything, mock.Anything, mock.Anything)
}

func TestIndexByTitle(t *testing.T) {
	pages := []notionapi.Page{
		{ID: "a", Properties: notionapi.Properties{"Serial": &notionapi.TitleProperty{
			Title: []notionapi.RichText{{PlainText: "17"}},
		}}},
		{ID: "b", Properties: notionapi.Properties{"Serial": Title("18")}},
		{ID: "c", Properties: notionapi.Properties{"Serial": Title("17")}},
		{ID: "d", Properties: notionapi.Properties{"Serial": Title("  ")}},
		{ID: "e", Properties: notionapi.Properties{}},
	}

	idx := IndexByTitle(pages, "Serial")
	assert.Equal(t, map[string]notionapi.ObjectID{"17": "a", "18": "b"}, idx)
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "NTPC VS MPPMCL", PlainText(RichText("NTPC VS MPPMCL")))
	assert.Equal(t, "", PlainText(URL("https://cercind.gov.in")))
	assert.Equal(t, "", PlainText(nil))
}

func TestRichText_Chunks(t *testing.T) {
	long := strings.Repeat("न", maxTextLen+10)
	prop := RichText(long)

	require.Len(t, prop.RichText, 2)
	assert.Equal(t, maxTextLen, utf8.RuneCountInString(prop.RichText[0].Text.Content))
	assert.Equal(t, 10, utf8.RuneCountInString(prop.RichText[1].Text.Content))
	assert.Equal(t, long, PlainText(prop))
}

func TestSelect(t *testing.T) {
	p := Select("High")
	assert.Equal(t, notionapi.PropertyTypeSelect, p.Type)
	assert.Equal(t, "High", p.Select.Name)
}

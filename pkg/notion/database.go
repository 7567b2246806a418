package notion

import (
	"context"
	"strings"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll pages through a database query and returns every result.
func QueryAll(ctx context.Context, c Client, dbID string, base *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	var all []notionapi.Page
	var cursor notionapi.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if base != nil {
			req.Filter = base.Filter
			req.Sorts = base.Sorts
			req.PageSize = base.PageSize
		}

		resp, err := c.QueryDatabase(ctx, dbID, req)
		if err != nil {
			return nil, eris.Wrap(err, "notion: query all")
		}
		all = append(all, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			return all, nil
		}
		cursor = resp.NextCursor
	}
}

// IndexByTitle maps the plain text of each page's title property to the
// page ID. Pages with an empty title are ignored; the first page wins.
func IndexByTitle(pages []notionapi.Page, property string) map[string]notionapi.ObjectID {
	idx := make(map[string]notionapi.ObjectID, len(pages))
	for _, p := range pages {
		key := PlainText(p.Properties[property])
		if key == "" {
			continue
		}
		if _, ok := idx[key]; !ok {
			idx[key] = p.ID
		}
	}
	return idx
}

// PlainText returns the text content of a title or rich_text property.
func PlainText(prop notionapi.Property) string {
	var parts []notionapi.RichText
	switch v := prop.(type) {
	case *notionapi.TitleProperty:
		parts = v.Title
	case notionapi.TitleProperty:
		parts = v.Title
	case *notionapi.RichTextProperty:
		parts = v.RichText
	case notionapi.RichTextProperty:
		parts = v.RichText
	default:
		return ""
	}

	var b strings.Builder
	for _, rt := range parts {
		switch {
		case rt.PlainText != "":
			b.WriteString(rt.PlainText)
		case rt.Text != nil:
			b.WriteString(rt.Text.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

// Title builds a title property.
func Title(s string) notionapi.TitleProperty {
	return notionapi.TitleProperty{
		Type:  notionapi.PropertyTypeTitle,
		Title: textChunks(s),
	}
}

// RichText builds a rich_text property. Long values are split into the
// 2000-character text objects Notion accepts.
func RichText(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type:     notionapi.PropertyTypeRichText,
		RichText: textChunks(s),
	}
}

// Select builds a select property.
func Select(name string) notionapi.SelectProperty {
	return notionapi.SelectProperty{
		Type:   notionapi.PropertyTypeSelect,
		Select: notionapi.Option{Name: name},
	}
}

// URL builds a url property.
func URL(u string) notionapi.URLProperty {
	return notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: u}
}

const maxTextLen = 2000

func textChunks(s string) []notionapi.RichText {
	runes := []rune(s)
	chunks := make([]notionapi.RichText, 0, len(runes)/maxTextLen+1)
	for len(runes) > maxTextLen {
		chunks = append(chunks, textObject(string(runes[:maxTextLen])))
		runes = runes[maxTextLen:]
	}
	return append(chunks, textObject(string(runes)))
}

func textObject(s string) notionapi.RichText {
	return notionapi.RichText{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: s}}
}

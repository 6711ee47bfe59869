package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ppiankov/shockeval/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestDecodeDocument(t *testing.T) {
	doc, err := DecodeDocument("1975/erp", []byte(`{"pages": ["first", "second"], "n_pages": 2, "error": null}`))
	require.NoError(t, err)

	assert.Equal(t, "1975-erp", doc.ID)
	assert.Equal(t, 1975, doc.Year)
	assert.Equal(t, "erp", doc.Source)
	require.Len(t, doc.Pages, 2)
	assert.Equal(t, model.Page{Index: 1, Text: "first"}, doc.Pages[0])
	assert.Equal(t, model.Page{Index: 2, Text: "second"}, doc.Pages[1])
}

func TestDecodeDocument_ExplicitFieldsAndPageObjects(t *testing.T) {
	doc, err := DecodeDocument("1975/erp", []byte(`{
		"document_id": "erp-1975",
		"source": "economic_report",
		"year": 1976,
		"pages": [{"index": 1, "text": "a"}, {"page": 2, "text": "b"}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "erp-1975", doc.ID)
	assert.Equal(t, "economic_report", doc.Source)
	assert.Equal(t, 1976, doc.Year)
	assert.Equal(t, "b", doc.Pages[1].Text)
}

func TestDecodeDocument_Errors(t *testing.T) {
	_, err := DecodeDocument("x", []byte(`{"pages": [], "error": "download failed"}`))
	assert.ErrorContains(t, err, "extraction failed")

	_, err = DecodeDocument("x", []byte(`{"pages": ["a"], "n_pages": 3}`))
	var se *model.StructuralError
	assert.ErrorAs(t, err, &se)

	_, err = DecodeDocument("x", []byte(`not json`))
	assert.Error(t, err)

	_, err = DecodeDocument("x", []byte(`{"pages": [42]}`))
	assert.Error(t, err)
}

func TestDiskLoader(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "1964", "erp", DocumentFile), `{"pages": ["p1"]}`)
	writeFile(t, filepath.Join(root, "1990", "budget", DocumentFile), `{"pages": ["p1", "p2"]}`)
	writeFile(t, filepath.Join(root, "1990", "budget", "notes.txt"), "ignored")

	l := NewDiskLoader(root, nil)
	ids, err := l.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1964/erp", "1990/budget"}, ids)

	doc, err := l.Load(context.Background(), "1990/budget")
	require.NoError(t, err)
	assert.Equal(t, "1990-budget", doc.ID)
	assert.Equal(t, 2, doc.NumPages())

	doc, err = l.Load(context.Background(), "1964/erp/document.json")
	require.NoError(t, err)
	assert.Equal(t, "1964-erp", doc.ID)

	_, err = l.Load(context.Background(), "2000/missing")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Load(ctx, "1964/erp")
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeS3 struct {
	objects map[string]string
	pages   [][]string
	gets    []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	f.gets = append(f.gets, key)
	body, ok := f.objects[key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(body)))}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := 0
	if in.ContinuationToken != nil {
		page = 1
	}
	out := &s3.ListObjectsV2Output{}
	for _, k := range f.pages[page] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if page+1 < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String("next")
	} else {
		out.IsTruncated = aws.Bool(false)
	}
	return out, nil
}

func TestS3Loader(t *testing.T) {
	client := &fakeS3{
		objects: map[string]string{
			"extracted/1964/erp/document.json": `{"pages": ["a", "b", "c"], "n_pages": 3}`,
		},
		pages: [][]string{
			{"extracted/1990/budget/document.json", "extracted/1990/budget/tables.json"},
			{"extracted/1964/erp/document.json"},
		},
	}
	l := NewS3LoaderWithClient(client, "fiscal-shocks-pdfs", "", nil)

	ids, err := l.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1964/erp", "1990/budget"}, ids)

	doc, err := l.Load(context.Background(), "1964/erp")
	require.NoError(t, err)
	assert.Equal(t, "1964-erp", doc.ID)
	assert.Equal(t, 3, doc.NumPages())
	assert.Equal(t, []string{"extracted/1964/erp/document.json"}, client.gets)

	_, err = l.Load(context.Background(), "1990/budget")
	assert.ErrorContains(t, err, "s3://fiscal-shocks-pdfs/extracted/1990/budget/document.json")
}

func TestNewLoader(t *testing.T) {
	l, err := NewLoader(context.Background(), model.SourceConfig{Kind: "disk", Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &DiskLoader{}, l)

	var ce *model.ConfigurationError
	_, err = NewLoader(context.Background(), model.SourceConfig{Kind: "disk"}, nil)
	assert.ErrorAs(t, err, &ce)

	_, err = NewLoader(context.Background(), model.SourceConfig{Kind: "s3"}, nil)
	assert.ErrorAs(t, err, &ce)

	l, err = NewLoader(context.Background(), model.SourceConfig{Kind: "http", URL: "http://localhost:9000/extracted"}, nil)
	require.NoError(t, err)
	_, err = l.List(context.Background())
	assert.ErrorAs(t, err, &ce)

	_, err = NewLoader(context.Background(), model.SourceConfig{Kind: "http"}, nil)
	assert.ErrorAs(t, err, &ce)

	_, err = NewLoader(context.Background(), model.SourceConfig{Kind: "ftp"}, nil)
	assert.ErrorAs(t, err, &ce)
}

func TestLoadEvents_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.yaml")
	writeFile(t, path, `
events:
  - event_id: rev-1964
    name: Revenue Act of 1964
    date_signed: "1964-02-26"
    category_label: Long-run
    canonical_passages:
      - "the tax reduction will stimulate growth"
    timing:
      - quarter: "1964-01"
        amount: -6.7
      - quarter: 1965q1
        amount: -2.5
`)

	events, err := LoadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1964, events[0].Year)
	assert.Equal(t, "1964Q1", events[0].Timing[0].Quarter)
	assert.Equal(t, "1965Q1", events[0].Timing[1].Quarter)
}

func TestLoadEvents_JSONList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")
	writeFile(t, path, `[{"event_id": "a", "name": "Act A", "year": 1990}, {"event_id": "b", "name": "Act B", "year": 1993}]`)

	events, err := LoadEvents(path)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestNormalizeEvents_Errors(t *testing.T) {
	var se *model.StructuralError

	err := NormalizeEvents([]model.Event{{Name: "x"}})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "events[0].event_id", se.Path)

	err = NormalizeEvents([]model.Event{{ID: "a", Name: "x"}, {ID: "a", Name: "y"}})
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Reason, "duplicate")

	err = NormalizeEvents([]model.Event{{ID: "a"}})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "events[0].name", se.Path)

	err = NormalizeEvents([]model.Event{{ID: "a", Name: "x", Timing: []model.TimingEntry{{Quarter: "1990Q5"}}}})
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "events[0].timing[0].quarter", se.Path)
}

func TestLoadCompanion(t *testing.T) {
	dir := t.TempDir()
	shocks := filepath.Join(dir, "parsed_shocks.json")
	labels := filepath.Join(dir, "parsed_labels.json")
	keywords := filepath.Join(dir, "keywords.yaml")

	writeFile(t, shocks, `[
	  {
	    "act_name": "Revenue Act of 1964",
	    "date_signed": "1964-02-26",
	    "standard_entries": [
	      {"quarter": "1964-01", "amount": -6.7, "category": "Long-run", "exogeneity": "Exogenous"},
	      {"quarter": "1965-01", "amount": -2.5, "category": null, "exogeneity": null}
	    ],
	    "retroactive_entries": [],
	    "present_value_entries": []
	  },
	  {
	    "act_name": "Tax Adjustment Act of 1966",
	    "date_signed": "1966-03-15",
	    "standard_entries": [],
	    "retroactive_entries": [
	      {"quarter": "1966-02", "amount": 1.0, "category": "Spending-driven", "exogeneity": "Endogenous"}
	    ]
	  },
	  {
	    "act_name": "Revenue Act of 1964",
	    "date_signed": "1964-06-01",
	    "standard_entries": []
	  }
	]`)
	writeFile(t, labels, `[
	  {"act_name": "Revenue Act of 1964", "motivation": "to remove the drag of the tax system on growth"},
	  {"act_name": "Revenue Act of 1964", "motivation": "to remove  the drag of the tax system on growth"},
	  {"act_name": "Revenue Act of 1964", "motivation": "too short"}
	]`)
	writeFile(t, keywords, `
Revenue Act of 1964:
  keyword_sets:
    - [tax reduction, "1964"]
  identifiers: [Public Law 88-272]
`)

	events, err := LoadCompanion(shocks, labels, keywords)
	require.NoError(t, err)
	require.Len(t, events, 3)

	rev := events[0]
	assert.Equal(t, "revenue-act-of-1964", rev.ID)
	assert.Equal(t, 1964, rev.Year)
	assert.Equal(t, "Long-run", rev.CategoryLabel)
	assert.Equal(t, "Exogenous", rev.Exogeneity)
	assert.Equal(t, []string{"to remove the drag of the tax system on growth"}, rev.CanonicalPassages)
	require.Len(t, rev.Timing, 2)
	assert.Equal(t, "1964Q1", rev.Timing[0].Quarter)
	assert.Equal(t, -6.7, rev.Timing[0].Amount)
	assert.Equal(t, []string{"Public Law 88-272"}, rev.Identifiers)
	assert.Equal(t, [][]string{{"tax reduction", "1964"}}, rev.KeywordSets)

	adj := events[1]
	assert.Equal(t, "Spending-driven", adj.CategoryLabel)
	assert.Empty(t, adj.Timing)

	assert.Equal(t, "revenue-act-of-1964-1964", events[2].ID)
}

func TestLoadCompanion_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadCompanion(filepath.Join(dir, "missing.json"), "", "")
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	writeFile(t, bad, `[{"act_name": "X", "standard_entries": [{"quarter": "soon", "amount": 1}]}]`)
	_, err = LoadCompanion(bad, "", "")
	var se *model.StructuralError
	assert.ErrorAs(t, err, &se)
}

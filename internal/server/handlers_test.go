package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/falazar/bookworm-languages/internal/config"
	"github.com/falazar/bookworm-languages/internal/storage"
)

// The router loads HTML templates relative to the module root.
func TestMain(m *testing.M) {
	if err := os.Chdir("../.."); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

const testContainerXML = `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

const testPackageOPF = `<?xml version="1.0" encoding="UTF-8"?>
<package version="2.0" unique-identifier="bookid" xmlns="http://www.idpf.org/2007/opf">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Test Book</dc:title>
    <dc:language>en</dc:language>
    <dc:identifier id="bookid">test-book-1</dc:identifier>
  </metadata>
  <manifest>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="ch2.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine toc="ncx">
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
  </spine>
</package>`

const testChapterXHTML = `<?xml version="1.0" encoding="UTF-8"?>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Chapter</title></head>
<body>
<p>Call me Ishmael.</p>
<p>Some years ago I went to sea.</p>
</body>
</html>`

func newTestServer(t *testing.T) (*Server, *storage.Store) {
	t.Helper()

	dataDir := t.TempDir()
	cfg := config.New()
	cfg.App.TempDir = filepath.Join(dataDir, "tmp")
	cfg.App.OutputDir = filepath.Join(dataDir, "output")
	cfg.App.UploadDir = filepath.Join(dataDir, "uploads")
	cfg.App.DatabasePath = filepath.Join(dataDir, "test.db")

	bookDir := filepath.Join(cfg.App.TempDir, "mybook")
	require.NoError(t, os.MkdirAll(filepath.Join(bookDir, "META-INF"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(bookDir, "OEBPS"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(bookDir, "mimetype"), []byte("application/epub+zip"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(bookDir, "META-INF", "container.xml"), []byte(testContainerXML), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(bookDir, "OEBPS", "content.opf"), []byte(testPackageOPF), 0644))
	for _, name := range []string{"ch1.xhtml", "ch2.xhtml"} {
		require.NoError(t, os.WriteFile(filepath.Join(bookDir, "OEBPS", name), []byte(testChapterXHTML), 0644))
	}

	store, err := storage.Open(cfg.App.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	srv, err := New(cfg, logger, store)
	require.NoError(t, err)
	return srv, store
}

func get(srv *Server, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestGetParagraphs(t *testing.T) {
	srv, _ := newTestServer(t)

	w := get(srv, "/api/paragraphs/mybook?chapter=ch1.xhtml")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Call me Ishmael.")
}

func TestGetParagraphsChapterAllowList(t *testing.T) {
	srv, _ := newTestServer(t)

	// Only spine entries resolve; paths are never looked up on disk.
	for _, chapter := range []string{
		"../../mybook/OEBPS/ch1.xhtml",
		"../META-INF/container.xml",
		"nope.xhtml",
	} {
		w := get(srv, "/api/paragraphs/mybook?chapter="+chapter)
		assert.Equal(t, http.StatusNotFound, w.Code, chapter)
	}
}

func TestGetParagraphsRejectsBadLanguageCode(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, lang := range []string{"x/../../..", "..", "not-a-language"} {
		w := get(srv, "/api/paragraphs/mybook?chapter=ch1.xhtml&lang="+url.QueryEscape(lang))
		assert.Equal(t, http.StatusBadRequest, w.Code, lang)
	}
}

func TestReaderRejectsBadLanguageCode(t *testing.T) {
	srv, _ := newTestServer(t)

	w := get(srv, "/read/mybook?chapter=ch1.xhtml&lang=x/../../..")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReaderResumesChapterAndParagraph(t *testing.T) {
	srv, store := newTestServer(t)

	require.NoError(t, store.SetProgress(context.Background(), storage.Progress{
		Book:          "mybook",
		LastChapter:   "ch2.xhtml",
		LastParagraph: 4,
	}))

	// No explicit chapter: the page opens on the saved one and seeds
	// the saved paragraph index for the first Play.
	w := get(srv, "/read/mybook")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `data-chapter="ch2.xhtml"`)
	assert.Contains(t, w.Body.String(), `data-resume-index="4"`)

	// A different chapter gets no stale index.
	w = get(srv, "/read/mybook?chapter=ch1.xhtml")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `data-resume-index="0"`)
}

func TestReaderUnknownBook(t *testing.T) {
	srv, _ := newTestServer(t)

	w := get(srv, "/read/nosuchbook")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

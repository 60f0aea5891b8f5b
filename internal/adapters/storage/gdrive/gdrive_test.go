package gdrive

import "testing"

func TestFileID(t *testing.T) {
	tests := []struct {
		url string
		id  string
		ok  bool
	}{
		{"https://drive.google.com/uc?id=abc123&export=download", "abc123", true},
		{"https://drive.google.com/open?id=xyz", "xyz", true},
		{"https://drive.google.com/file/d/1A2b3C/view?usp=sharing", "1A2b3C", true},
		{"https://docs.google.com/file/d/doc9/edit", "doc9", true},
		{"https://drive.google.com/drive/folders/f1", "", false},
		{"https://example.com/uc?id=abc", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			id, ok := FileID(tt.url)
			if id != tt.id || ok != tt.ok {
				t.Errorf("FileID(%q) = %q, %v; want %q, %v", tt.url, id, ok, tt.id, tt.ok)
			}
		})
	}
}

func TestPublicURLResolves(t *testing.T) {
	c := &Client{}
	u := c.PublicURL("file-42")
	ref, ok := c.ResolveURL(u)
	if !ok || ref.Key != "file-42" {
		t.Errorf("expected %s to resolve to file-42, got %+v %v", u, ref, ok)
	}
}

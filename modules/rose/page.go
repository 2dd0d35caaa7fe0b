package rose

import (
	_ "embed"
	"html/template"
	"io"
)

//go:embed assets/index.html
var indexTmpl string

// PageData - index.html 템플릿 데이터
type PageData struct {
	State         Snapshot
	MaxNameLength int
	MinSize       int
	MaxSize       int

	StatePath     string
	FormPath      string
	ReferencePath string
	GeneratePath  string
	WebSocketPath string
}

// Page - 폼 페이지 템플릿
type Page struct {
	tmpl *template.Template
}

// NewPage - 내장 템플릿 파싱
func NewPage() *Page {
	return &Page{
		tmpl: template.Must(template.New("index").Parse(indexTmpl)),
	}
}

// Render - 현재 세션 상태로 페이지 렌더링
func (p *Page) Render(w io.Writer, state Snapshot) error {
	return p.tmpl.Execute(w, PageData{
		State:         state,
		MaxNameLength: MaxNameLength,
		MinSize:       MinSizePercent,
		MaxSize:       MaxSizePercent,
		StatePath:     StatePath,
		FormPath:      FormPath,
		ReferencePath: ReferencePath,
		GeneratePath:  GeneratePath,
		WebSocketPath: WebSocketPath,
	})
}

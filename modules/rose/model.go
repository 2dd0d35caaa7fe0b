package rose

import (
	"fmt"
	"time"
)

// Status - 세션 당 하나뿐인 생성 요청의 상태
type Status string

const (
	StatusIdle       Status = "idle"
	StatusGenerating Status = "generating"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

const (
	MaxNameLength      = 20 // rune 단위
	MinSizePercent     = 10
	MaxSizePercent     = 100
	DefaultSizePercent = 50

	// AspectRatio - 결과 이미지 비율 (고정)
	AspectRatio = "16:9"
)

// ReferenceImage - 사용자가 올린 참조 이미지 (PNG로 정규화된 상태)
type ReferenceImage struct {
	Data         []byte
	OriginalType string // 업로드 당시 MIME 타입
}

// FormInput - 사용자 입력 폼
type FormInput struct {
	Name           string
	SizePercent    int
	ReferenceImage *ReferenceImage
}

// GenerationRequest - submit 시점의 FormInput 스냅샷 (불변)
type GenerationRequest struct {
	Name           string // trim 된 이름
	SizePercent    int
	ReferenceImage *ReferenceImage
}

// HasReference - 참조 이미지 포함 여부
func (r GenerationRequest) HasReference() bool {
	return r.ReferenceImage != nil && len(r.ReferenceImage.Data) > 0
}

// GenerationResult - 원격 생성 성공 결과
type GenerationResult struct {
	ImageData   []byte
	MIMEType    string
	Name        string
	SizePercent int
	CreatedAt   time.Time
}

// Filename - 다운로드 파일명 (Rosa_<name>_<size>.png)
func (r GenerationResult) Filename() string {
	return fmt.Sprintf("Rosa_%s_%d.png", r.Name, r.SizePercent)
}

// ResultView - 렌더링용 결과 메타데이터 (바이너리 제외)
type ResultView struct {
	Name        string    `json:"name"`
	SizePercent int       `json:"size_percent"`
	CreatedAt   time.Time `json:"created_at"`
	Filename    string    `json:"filename"`
	PreviewURL  string    `json:"preview_url"`
	DownloadURL string    `json:"download_url"`
}

// Snapshot - 세션 상태의 읽기 전용 뷰
type Snapshot struct {
	Status       Status      `json:"status"`
	Name         string      `json:"name"`
	SizePercent  int         `json:"size_percent"`
	HasReference bool        `json:"has_reference"`
	ErrorMessage string      `json:"error_message,omitempty"`
	Notice       string      `json:"notice,omitempty"`
	Result       *ResultView `json:"result,omitempty"`
}

// CanSubmit - 생성 버튼 활성화 여부
func (s Snapshot) CanSubmit() bool {
	return s.Status != StatusGenerating
}

package rose

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/text/language"

	"rosa-canvas-server/modules/common/i18n"
	"rosa-canvas-server/modules/common/utils"
)

type event string

const (
	eventSubmit    event = "submit"
	eventSucceeded event = "succeeded"
	eventFailed    event = "failed"
)

// transitions - 허용되는 상태 전이 전체 목록. 여기 없는 (상태, 이벤트) 조합은 모두 거부
var transitions = map[Status]map[event]Status{
	StatusIdle:       {eventSubmit: StatusGenerating},
	StatusGenerating: {eventSucceeded: StatusSuccess, eventFailed: StatusError},
	StatusSuccess:    {eventSubmit: StatusGenerating},
	StatusError:      {eventSubmit: StatusGenerating},
}

func nextStatus(from Status, ev event) (Status, error) {
	to, ok := transitions[from][ev]
	if !ok {
		return from, fmt.Errorf("%w: %s --%s-->", ErrInvalidTransition, from, ev)
	}
	return to, nil
}

// ControllerOptions - Controller 생성 옵션
type ControllerOptions struct {
	Generator Generator
	Catalog   *i18n.Catalog
	Language  language.Tag

	// BaseContext - 원격 호출용 루트 컨텍스트 (서버 종료 시 취소됨)
	BaseContext context.Context
	// Timeout - 0이면 원격 호출 시간 제한 없음
	Timeout time.Duration

	Logger zerolog.Logger
	Now    func() time.Time
}

// Controller - 브라우저 세션 하나의 폼/요청 상태를 소유하는 상태 머신
type Controller struct {
	generator Generator
	catalog   *i18n.Catalog
	lang      language.Tag
	baseCtx   context.Context
	timeout   time.Duration
	log       zerolog.Logger
	now       func() time.Time

	mu           sync.Mutex
	input        FormInput
	status       Status
	errorKey     i18n.Key
	noticeKey    i18n.Key
	result       *GenerationResult
	done         chan struct{}
	subscribers  map[int]chan Snapshot
	nextSubID    int
	lastActivity time.Time
}

// NewController - idle 상태의 컨트롤러 생성
func NewController(opts ControllerOptions) *Controller {
	now := lo.Ternary(opts.Now != nil, opts.Now, time.Now)
	baseCtx := opts.BaseContext
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = i18n.MustNewCatalog("")
	}

	// 진행 중인 호출이 없으므로 닫힌 채널로 시작
	done := make(chan struct{})
	close(done)

	return &Controller{
		generator:    opts.Generator,
		catalog:      catalog,
		lang:         opts.Language,
		baseCtx:      baseCtx,
		timeout:      opts.Timeout,
		log:          opts.Logger,
		now:          now,
		input:        FormInput{SizePercent: DefaultSizePercent},
		status:       StatusIdle,
		done:         done,
		subscribers:  make(map[int]chan Snapshot),
		lastActivity: now(),
	}
}

// SetName - 이름 설정 (20자 초과분은 잘라냄)
func (c *Controller) SetName(value string) {
	if utf8.RuneCountInString(value) > MaxNameLength {
		value = string([]rune(value)[:MaxNameLength])
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.input.Name = value
	c.touchLocked()
	c.publishLocked()
}

// SetSize - 이름 크기(%) 설정, [10,100] 범위로 보정
func (c *Controller) SetSize(value int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input.SizePercent = lo.Clamp(value, MinSizePercent, MaxSizePercent)
	c.touchLocked()
	c.publishLocked()
}

// SetReferenceImage - 참조 이미지 교체
// 이미지가 아니면 ErrNotAnImage (기존 참조 이미지 유지)
// 디코딩 실패 시 참조 이미지 없음으로 처리하고 ErrUndecodableImage 반환 (상태는 에러로 바뀌지 않음)
func (c *Controller) SetReferenceImage(data []byte) error {
	mimeType, err := utils.DetectImageType(data)
	if err != nil {
		c.log.Warn().Str("detected", mimeType).Msg("⚠️ [Rose] Rejected non-image reference upload")
		c.mu.Lock()
		defer c.mu.Unlock()
		c.noticeKey = i18n.NotAnImage
		c.touchLocked()
		c.publishLocked()
		return ErrNotAnImage
	}

	pngData, format, err := utils.NormalizeToPNG(data)
	if err != nil {
		c.log.Warn().Err(err).Str("detected", mimeType).Int("bytes", len(data)).
			Msg("⚠️ [Rose] Reference image could not be decoded, ignoring it")
		c.mu.Lock()
		defer c.mu.Unlock()
		c.input.ReferenceImage = nil
		c.noticeKey = i18n.ReferenceIgnored
		c.touchLocked()
		c.publishLocked()
		return fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}

	c.log.Info().Msgf("📷 [Rose] Reference image set: %s (%s), %d bytes as PNG", mimeType, format, len(pngData))

	c.mu.Lock()
	defer c.mu.Unlock()
	c.input.ReferenceImage = &ReferenceImage{Data: pngData, OriginalType: mimeType}
	c.noticeKey = ""
	c.touchLocked()
	c.publishLocked()
	return nil
}

// ClearReferenceImage - 참조 이미지 제거
func (c *Controller) ClearReferenceImage() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.input.ReferenceImage = nil
	c.noticeKey = ""
	c.touchLocked()
	c.publishLocked()
}

// ReferenceImage - 현재 참조 이미지 (PNG)
func (c *Controller) ReferenceImage() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.input.ReferenceImage == nil {
		return nil, false
	}
	return c.input.ReferenceImage.Data, true
}

// Submit - 생성 시작
// 이미 생성 중이면 ErrAlreadyGenerating (이름 검사보다 먼저, 진행 중인 화면에 에러를 남기지 않음)
// 이름이 비어 있으면 ErrMissingName (상태 변화 없음, 원격 호출 없음)
// 원격 호출은 고루틴에서 진행되고 Done() 채널로 완료를 알림
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()

	next, err := nextStatus(c.status, eventSubmit)
	if err != nil {
		return ErrAlreadyGenerating
	}

	name := strings.TrimSpace(c.input.Name)
	if name == "" {
		c.errorKey = i18n.MissingName
		c.publishLocked()
		return ErrMissingName
	}

	req := GenerationRequest{
		Name:           name,
		SizePercent:    c.input.SizePercent,
		ReferenceImage: c.input.ReferenceImage,
	}

	c.status = next
	c.errorKey = ""
	done := make(chan struct{})
	c.done = done
	c.publishLocked()

	// 원격 호출은 HTTP 요청이 끝나도 계속되어야 하므로 요청 컨텍스트 대신 루트 컨텍스트 사용
	reqLog := zerolog.Ctx(ctx)
	if reqLog.GetLevel() == zerolog.Disabled {
		reqLog = &c.log
	}
	callCtx := reqLog.WithContext(c.baseCtx)
	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		callCtx, cancel = context.WithTimeout(callCtx, c.timeout)
	}

	go func() {
		defer cancel()
		img, err := c.generator.Generate(callCtx, req)
		c.finish(req, img, err, done)
	}()
	return nil
}

func (c *Controller) finish(req GenerationRequest, img *GeneratedImage, genErr error, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer close(done)

	ev := lo.Ternary(genErr == nil, eventSucceeded, eventFailed)
	next, err := nextStatus(c.status, ev)
	if err != nil {
		// generating 상태에서만 호출되므로 도달하면 버그
		c.log.Error().Err(err).Msg("❌ [Rose] Unexpected completion")
		return
	}
	c.status = next

	if genErr != nil {
		c.log.Error().Err(genErr).Str("name", req.Name).Msg("❌ [Rose] Generation failed")
		c.errorKey = i18n.ConnectionError
		c.publishLocked()
		return
	}

	// 다운로드 파일명이 .png 이므로 결과도 PNG로 저장. 디코딩이 안 되면 원본 그대로
	data, mimeType := img.Data, img.MIMEType
	if pngData, format, err := utils.NormalizeToPNG(img.Data); err == nil {
		data, mimeType = pngData, "image/png"
		if format != "png" {
			c.log.Info().Msgf("🔄 [Rose] Converted %s result to PNG", format)
		}
	} else {
		c.log.Warn().Err(err).Str("mime", img.MIMEType).Msg("⚠️ [Rose] Result is not decodable, keeping original bytes")
	}

	c.errorKey = ""
	c.result = &GenerationResult{
		ImageData:   data,
		MIMEType:    mimeType,
		Name:        req.Name,
		SizePercent: req.SizePercent,
		CreatedAt:   c.now(),
	}
	c.log.Info().Msgf("✅ [Rose] Design ready: %s", c.result.Filename())
	c.publishLocked()
}

// Done - 현재(또는 마지막) 원격 호출이 끝나면 닫히는 채널
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Download - 결과 이미지, 파일명, MIME 타입 (결과가 없으면 ok=false)
func (c *Controller) Download() (filename, mimeType string, data []byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return "", "", nil, false
	}
	c.touchLocked()
	return c.result.Filename(), c.result.MIMEType, c.result.ImageData, true
}

// Result - 마지막 성공 결과 복사본
func (c *Controller) Result() (GenerationResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return GenerationResult{}, false
	}
	return *c.result, true
}

// Status - 현재 상태
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Snapshot - 렌더링용 상태
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe - 상태가 바뀔 때마다 스냅샷을 받는 채널. 받는 쪽이 느리면 오래된 스냅샷은 버림
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	ch := make(chan Snapshot, 8)
	c.subscribers[id] = ch

	unsubscribe := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subscribers, id)
	}
	return ch, unsubscribe
}

// Busy - 원격 호출 진행 중 여부
func (c *Controller) Busy() bool {
	return c.Status() == StatusGenerating
}

// LastActivity - 마지막 사용자 활동 시각
func (c *Controller) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Message - 세션 언어로 메시지 변환
func (c *Controller) Message(key i18n.Key) string {
	return c.catalog.Text(c.lang, key)
}

// IsValidation - 로컬 검증 에러 여부
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func (c *Controller) touchLocked() {
	c.lastActivity = c.now()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:       c.status,
		Name:         c.input.Name,
		SizePercent:  c.input.SizePercent,
		HasReference: c.input.ReferenceImage != nil,
	}
	if c.errorKey != "" {
		snap.ErrorMessage = c.catalog.Text(c.lang, c.errorKey)
	}
	if c.noticeKey != "" {
		snap.Notice = c.catalog.Text(c.lang, c.noticeKey)
	}
	if c.status == StatusSuccess && c.result != nil {
		snap.Result = &ResultView{
			Name:        c.result.Name,
			SizePercent: c.result.SizePercent,
			CreatedAt:   c.result.CreatedAt,
			Filename:    c.result.Filename(),
			PreviewURL:  fmt.Sprintf("%s?v=%d", PreviewPath, c.result.CreatedAt.UnixNano()),
			DownloadURL: DownloadPath,
		}
	}
	return snap
}

func (c *Controller) publishLocked() {
	if len(c.subscribers) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

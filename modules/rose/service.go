package rose

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"google.golang.org/genai"

	"rosa-canvas-server/modules/common/gemini"
)

// GeneratedImage - 원격 서비스가 돌려준 이미지
type GeneratedImage struct {
	Data     []byte
	MIMEType string
}

// Generator - 원격 이미지 생성 포트
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GeneratedImage, error)
}

// Service - 프롬프트 생성 + Gemini 단발 호출
type Service struct {
	models gemini.ContentGenerator
	model  string
}

// NewService - models에는 보통 (*genai.Client).Models 를 넘김
func NewService(models gemini.ContentGenerator, model string) *Service {
	return &Service{
		models: models,
		model:  model,
	}
}

// Generate - 요청 하나당 GenerateContent 한 번 호출, 첫 candidate의 첫 inline 이미지 반환
// 재시도 없음. 실패는 RemoteInvocationError로 감싸서 그대로 올려보냄
func (s *Service) Generate(ctx context.Context, req GenerationRequest) (*GeneratedImage, error) {
	log := zerolog.Ctx(ctx).With().Str("module", "rose").Str("model", s.model).Logger()

	prompt := BuildPrompt(req)
	log.Info().Msgf("🎨 [Rose] Generating design - name: %s, size: %d%%, reference: %v, ratio: %s",
		req.Name, req.SizePercent, req.HasReference(), AspectRatio)

	// 참조 이미지가 있으면 텍스트보다 앞에 둠
	parts := []*genai.Part{}
	if req.HasReference() {
		parts = append(parts, genai.NewPartFromBytes(req.ReferenceImage.Data, "image/png"))
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	result, err := s.models.GenerateContent(
		ctx,
		s.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ImageConfig: &genai.ImageConfig{
				AspectRatio: AspectRatio,
			},
		},
	)
	if err != nil {
		log.Error().Err(err).Msg("❌ [Rose] Gemini API error")
		return nil, &RemoteInvocationError{Model: s.model, Err: err}
	}

	blob, ok := gemini.FirstCandidateImage(result)
	if !ok {
		log.Error().Int("candidates", len(result.Candidates)).Msg("❌ [Rose] No image in Gemini response")
		return nil, &RemoteInvocationError{Model: s.model, Err: ErrNoImageReturned}
	}

	log.Info().Msgf("✅ [Rose] Image generated: %d bytes", len(blob.Data))
	return &GeneratedImage{
		Data:     blob.Data,
		MIMEType: lo.Ternary(blob.MIMEType != "", blob.MIMEType, "image/png"),
	}, nil
}

var _ Generator = (*Service)(nil)

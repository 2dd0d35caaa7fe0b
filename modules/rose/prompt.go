package rose

import (
	"fmt"
	"strings"
)

// 이름 크기 설명 (임계값 고정)
const (
	DescriptorDelicate = "delicate, thin, small script, subtle within the stem"
	DescriptorBalanced = "balanced and elegant proportion"
	DescriptorBold     = "bold, large, thick script, most prominent part of the design"
)

// SizeDescriptor - sizePercent를 타이포그래피 크기 설명으로 변환
// < 35 delicate, 35~75 balanced, > 75 bold
func SizeDescriptor(sizePercent int) string {
	switch {
	case sizePercent < 35:
		return DescriptorDelicate
	case sizePercent > 75:
		return DescriptorBold
	default:
		return DescriptorBalanced
	}
}

// BuildPrompt - 레이저 커팅용 장미 실루엣 프롬프트 생성
func BuildPrompt(req GenerationRequest) string {
	var b strings.Builder

	b.WriteString("TASK: CREATE A BLACK AND WHITE MINIMALIST LINE-ART SILHOUETTE FOR LASER CUTTING.\n")
	fmt.Fprintf(&b, "OBJECT: A horizontal rose where the stem is formed by the word \"%s\".\n\n", req.Name)

	b.WriteString("CRITICAL DESIGN RULES:\n")
	fmt.Fprintf(&b, "1. INTEGRATION: The name \"%s\" must be \"SOLDERED\" (physically connected) to the rose head on the right and the rest of the stem on the left, as one single continuous cursive line.\n", req.Name)
	b.WriteString("2. TYPOGRAPHY: Use a continuous, flowy CURSIVE script similar to the natural curves of a rose stem.\n")
	fmt.Fprintf(&b, "3. SIZE: The name should have a %s.\n", SizeDescriptor(req.SizePercent))
	b.WriteString("4. STYLE: Silhouette only. Minimalist, clean black lines on a PURE WHITE background.\n")
	b.WriteString("5. CONNECTIVITY: Every letter must touch the next one and the stem parts to ensure it is a single piece when cut.\n")
	b.WriteString("6. NO SHADING: Pure solid black silhouette. No gradients, no gray, no shadows.\n")

	if req.HasReference() {
		fmt.Fprintf(&b, "\nREFERENCING: Use the floral style and overall composition of the provided image, but replace its text with \"%s\" using the specified size and cursive style.\n", req.Name)
	}

	return b.String()
}

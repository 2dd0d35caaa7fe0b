package i18n

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Key - 사용자에게 노출되는 메시지 키
type Key string

const (
	MissingName       Key = "missing_name"
	ConnectionError   Key = "connection_error"
	AlreadyGenerating Key = "already_generating"
	NotAnImage        Key = "not_an_image"
	ReferenceIgnored  Key = "reference_ignored"
	NoResult          Key = "no_result"
	InvalidRequest    Key = "invalid_request"
)

var supported = []language.Tag{language.Spanish, language.English}

var texts = map[language.Tag]map[Key]string{
	language.Spanish: {
		MissingName:       "Por favor, ingresa un nombre.",
		ConnectionError:   "Error de conexión. Inténtalo de nuevo.",
		AlreadyGenerating: "Ya se está generando un diseño. Espera a que termine.",
		NotAnImage:        "El archivo debe ser una imagen.",
		ReferenceIgnored:  "No se pudo leer la imagen de referencia. Se generará sin ella.",
		NoResult:          "Todavía no hay un diseño para descargar.",
		InvalidRequest:    "Solicitud no válida.",
	},
	language.English: {
		MissingName:       "Please enter a name.",
		ConnectionError:   "Connection error. Please try again.",
		AlreadyGenerating: "A design is already being generated. Please wait.",
		NotAnImage:        "The file must be an image.",
		ReferenceIgnored:  "The reference image could not be read. The design will be generated without it.",
		NoResult:          "There is no design to download yet.",
		InvalidRequest:    "Invalid request.",
	},
}

// Catalog - 메시지 카탈로그 + Accept-Language 매칭
type Catalog struct {
	fallback language.Tag
	matcher  language.Matcher
	builder  *catalog.Builder
}

// NewCatalog - defaultLocale("es", "en")을 기본값으로 카탈로그 생성
func NewCatalog(defaultLocale string) (*Catalog, error) {
	builder := catalog.NewBuilder(catalog.Fallback(language.Spanish))
	if err := register(builder, texts); err != nil {
		return nil, err
	}

	c := &Catalog{
		fallback: language.Spanish,
		matcher:  language.NewMatcher(supported),
		builder:  builder,
	}
	if defaultLocale != "" {
		c.fallback = c.Resolve(defaultLocale)
	}
	return c, nil
}

// MustNewCatalog - NewCatalog 실패 시 panic
func MustNewCatalog(defaultLocale string) *Catalog {
	c, err := NewCatalog(defaultLocale)
	if err != nil {
		panic(err)
	}
	return c
}

func register(builder *catalog.Builder, entries map[language.Tag]map[Key]string) error {
	for tag, messages := range entries {
		for key, text := range messages {
			if err := builder.SetString(tag, string(key), text); err != nil {
				return fmt.Errorf("failed to register message %s/%s: %w", tag, key, err)
			}
		}
	}
	return nil
}

// Resolve - Accept-Language 헤더 값으로 지원 언어 선택
func (c *Catalog) Resolve(acceptLanguage string) language.Tag {
	if strings.TrimSpace(acceptLanguage) == "" {
		return c.fallback
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return c.fallback
	}
	_, index, confidence := c.matcher.Match(tags...)
	if confidence == language.No {
		return c.fallback
	}
	return supported[index]
}

// Text - 해당 언어의 메시지
func (c *Catalog) Text(tag language.Tag, key Key) string {
	return message.NewPrinter(tag, message.Catalog(c.builder)).Sprintf(string(key))
}

package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSetter struct {
	calls map[string]string
}

func (s *recordingSetter) SetLanguage(_ context.Context, key, language string) {
	if s.calls == nil {
		s.calls = make(map[string]string)
	}
	s.calls[key] = language
}

func TestRouteHelp(t *testing.T) {
	setter := &recordingSetter{}
	router := NewRouter(setter)

	for _, text := range []string{"/ajuda", "/AJUDA", "/Ajuda agora"} {
		res, ok := router.Route(context.Background(), "5511999", text)
		assert.True(t, ok, text)
		assert.Equal(t, HelpText, res.Reply)
		assert.Equal(t, Help, res.Command)
	}
	assert.Empty(t, setter.calls)
}

func TestRouteLanguage(t *testing.T) {
	setter := &recordingSetter{}
	router := NewRouter(setter)

	res, ok := router.Route(context.Background(), "5511999", "/HACKER  french ")
	assert.True(t, ok)
	assert.Equal(t, "Idioma de resposta alterado para: french", res.Reply)
	assert.Equal(t, map[string]string{"5511999": "french"}, setter.calls)

	res, ok = router.Route(context.Background(), "5511888", "/hacker português   de Portugal")
	assert.True(t, ok)
	assert.Equal(t, "português   de Portugal", setter.calls["5511888"])
	assert.Equal(t, "Idioma de resposta alterado para: português   de Portugal", res.Reply)
}

func TestRouteLanguageLabelIsVerbatim(t *testing.T) {
	setter := &recordingSetter{}
	router := NewRouter(setter)

	for text, want := range map[string]string{
		"/hacker  pt-BR\t(formal)  ": "pt-BR\t(formal)",
		"/hacker English / US":       "English / US",
		"/hacker Klingon":            "Klingon",
	} {
		res, ok := router.Route(context.Background(), "5511777", text)
		assert.True(t, ok, text)
		assert.Equal(t, want, setter.calls["5511777"], text)
		assert.Equal(t, LanguageConfirmation(want), res.Reply, text)
	}
}

func TestRouteFallsThrough(t *testing.T) {
	setter := &recordingSetter{}
	router := NewRouter(setter)

	for _, text := range []string{"/hacker", "/hacker   ", "Qual a capital da França?", "/desconhecido", "ajuda", ""} {
		_, ok := router.Route(context.Background(), "k", text)
		assert.False(t, ok, text)
	}
	assert.Empty(t, setter.calls)
}

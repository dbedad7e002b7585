package utils

import (
	"errors"
	"net/http"
	"testing"

	"github.com/RecoveryAshes/GMapsReviewCrawler/internal/models"
)

func TestValidateHeader(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		value     string
		wantErr   bool
		wantField string
	}{
		{"有效头部", "Accept-Language", "id-ID,id;q=0.9", false, ""},
		{"浏览器管理的头部", "Host", "example.com", true, "name"},
		{"大小写不敏感", "content-length", "10", true, "name"},
		{"名称含空格", "X Custom", "v", true, "name"},
		{"名称为空", "", "v", true, "name"},
		{"值含换行", "X-Test", "a\nb", true, "value"},
		{"值含非ASCII", "X-Test", "测试", true, "value"},
		{"值过长", "X-Test", string(make([]byte, MaxHeaderValueLength+1)), true, "value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHeader(tt.header, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateHeader() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var ve *models.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("错误类型 = %T, want *ValidationError", err)
			}
			if ve.Field != tt.wantField {
				t.Errorf("Field = %s, want %s", ve.Field, tt.wantField)
			}
		})
	}
}

func TestValidateHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("User-Agent", "Mozilla/5.0")
	h.Set("Connection", "close")
	if err := ValidateHeaders(h); err == nil {
		t.Error("包含 Connection 时应返回错误")
	}
}

func TestRedactHeaderValue(t *testing.T) {
	tests := []struct {
		name   string
		header string
		value  string
		want   string
	}{
		{"普通头部不脱敏", "Accept-Language", "id-ID", "id-ID"},
		{"Bearer令牌", "Authorization", "Bearer abc.def.ghi", "Bearer ***"},
		{"长Cookie", "Cookie", "NID=1234567890abcdef", "NID=***cdef"},
		{"短密钥", "X-Api-Key", "abc", "***"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactHeaderValue(tt.header, tt.value); got != tt.want {
				t.Errorf("RedactHeaderValue() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRedactToString(t *testing.T) {
	h := http.Header{}
	h.Set("User-Agent", "UA")
	h.Set("Cookie", "SID=abcdefghijkl")

	want := "Cookie: SID=***ijkl, User-Agent: UA"
	if got := RedactToString(h); got != want {
		t.Errorf("RedactToString() = %q, want %q", got, want)
	}
}

package cli

import (
	"errors"
	"fmt"
)

// 終了コード
const (
	ExitSuccess      = 0 // 正常終了
	ExitFailure      = 1 // シナリオを読み込めない、実行できない
	ExitCommandError = 2 // フラグや設定ファイルの誤り
)

// ExitError は終了コード付きのエラー
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError は終了コード付きのエラーを作成する
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError は既存のエラーに終了コードを付ける
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode はエラーから終了コードを取り出す（ExitError 以外は ExitFailure）
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

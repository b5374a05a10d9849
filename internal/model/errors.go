// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, not_found, upload, sync, system
	Action   string // ユーザー向け対処方法
	cause    error  // 元になったエラー（任意）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は元になったエラーを返す。
func (e *APIError) Unwrap() error {
	return e.cause
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeAccountExists      = "ACCOUNT_EXISTS"
	ErrCodeWeakPassword       = "WEAK_PASSWORD"
	ErrCodeNotSignedIn        = "NOT_SIGNED_IN"
	ErrCodeTitleRequired      = "TITLE_REQUIRED"
	ErrCodeTaskNotFound       = "TASK_NOT_FOUND"
	ErrCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	ErrCodeUploadFailed       = "UPLOAD_FAILED"
	ErrCodeSyncFailed         = "SYNC_FAILED"
	ErrCodeRemoveBGFailed     = "REMOVEBG_FAILED"
)

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// ユーザーの存在有無を秘匿するため、メールアドレス誤りとパスワード誤りを区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewAccountExistsError はアカウント重複エラーを生成する。
func NewAccountExistsError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountExists,
		Message:  fmt.Sprintf("このメールアドレスは既に登録されています: %s", email),
		Category: "auth",
		Action:   "ログイン画面からサインインしてください。",
	}
}

// NewWeakPasswordError はパスワード強度不足エラーを生成する。
func NewWeakPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeWeakPassword,
		Message:  "パスワードは6文字以上で入力してください。",
		Category: "auth",
		Action:   "より長いパスワードを設定してください。",
	}
}

// NewNotSignedInError は未サインインエラーを生成する。
func NewNotSignedInError() *APIError {
	return &APIError{
		Code:     ErrCodeNotSignedIn,
		Message:  "サインインしていません。",
		Category: "auth",
		Action:   "サインインしてから再度お試しください。",
	}
}

// NewTitleRequiredError はタスクタイトル未入力エラーを生成する。
// ネットワーク呼び出しの前にローカルで検出される。
func NewTitleRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTitleRequired,
		Message:  "タスクのタイトルを入力してください。",
		Category: "validation",
		Action:   "タイトルは空白のみにできません。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", taskID),
		Category: "not_found",
		Action:   "タスクIDを確認してください。",
	}
}

// NewUploadError はアップロード失敗エラーを生成する。
// 主経路とフォールバック経路の両方が失敗した場合にのみ使用され、
// 最後に発生した原因エラーのメッセージを保持する。
func NewUploadError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeUploadFailed,
		Message:  fmt.Sprintf("画像のアップロードに失敗しました: %s", cause.Error()),
		Category: "upload",
		Action:   "画像を選び直すか、しばらく待ってから再度お試しください。",
		cause:    cause,
	}
}

// NewSyncError はライブ購読の転送層エラーを生成する。
// 受信側はフォールバックの一括取得で表示の停滞を回避する。
func NewSyncError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeSyncFailed,
		Message:  fmt.Sprintf("リアルタイム同期が中断されました: %s", cause.Error()),
		Category: "sync",
		Action:   "通信環境を確認してください。最新データは自動で再取得されます。",
		cause:    cause,
	}
}

// NewRemoveBGError は背景除去API呼び出し失敗エラーを生成する。
func NewRemoveBGError(cause error) *APIError {
	return &APIError{
		Code:     ErrCodeRemoveBGFailed,
		Message:  fmt.Sprintf("背景の除去に失敗しました: %s", cause.Error()),
		Category: "system",
		Action:   "別の画像で試すか、しばらく待ってから再度お試しください。",
		cause:    cause,
	}
}

package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/chatman/internal/metrics"
	"github.com/hitoshi/chatman/internal/model"
	"github.com/hitoshi/chatman/internal/repository"
)

// streamBufferSize はストリーミング送出チャネルのバッファ長。
// 送出順序の保証には影響せず、消費側の一時的な遅延のみを吸収する。
const streamBufferSize = 16

// defaultPersistTimeout はストリーム完了後の非同期保存に許す時間。
const defaultPersistTimeout = 10 * time.Second

// StreamEvent はストリーミングターンの1イベントを表す。
// Chunkイベントが到着順に続き、DoneまたはErrイベントで終端する。
// チャネルは終端イベント送出後にちょうど1回クローズされる。
type StreamEvent struct {
	Chunk string // 部分応答テキスト（Done/Errイベントでは空）
	Err   error  // 上流エラー（終端イベントのみ）
	Done  bool   // 正常終端
}

// Coordinator は1ターンのオーケストレーションを行う。
// ユーザー発話の保存、コンテキストウィンドウ構築、補完エンジン呼び出し、
// アシスタント応答の保存を調停する。
type Coordinator struct {
	sessions       repository.SessionRepository
	messages       repository.MessageRepository
	windows        *ContextWindowBuilder
	completer      Completer
	collector      metrics.MetricsCollector
	persistTimeout time.Duration
}

// NewCoordinator はCoordinatorを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewCoordinator(
	sessions repository.SessionRepository,
	messages repository.MessageRepository,
	windows *ContextWindowBuilder,
	completer Completer,
	collector metrics.MetricsCollector,
) *Coordinator {
	if collector == nil {
		collector = noopCollector{}
	}
	return &Coordinator{
		sessions:       sessions,
		messages:       messages,
		windows:        windows,
		completer:      completer,
		collector:      collector,
		persistTimeout: defaultPersistTimeout,
	}
}

// SendMessage は同期ターンを実行する。
// ユーザー発話を保存し、直近メッセージから構築したウィンドウで補完エンジンを
// 呼び出し、応答をアシスタント発話として保存して返す。
// 補完エンジンが失敗してもユーザー発話はロールバックされない
// （応答のないユーザー発話は回復可能な正常状態）。
func (c *Coordinator) SendMessage(ctx context.Context, sessionID, userID, content string) (*model.Message, error) {
	window, err := c.prepareTurn(ctx, sessionID, userID, content)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	reply, err := c.completer.Complete(ctx, window)
	c.collector.RecordCompletionLatency(time.Since(start))
	if err != nil {
		c.collector.RecordCompletionFailure()
		slog.Error("completion request failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamError()
	}

	assistantMsg, err := c.messages.Append(ctx, sessionID, model.RoleAssistant, reply)
	if err != nil {
		return nil, storageError("persist assistant message", err)
	}

	c.collector.RecordTurn()
	return assistantMsg, nil
}

// SendMessageStream はストリーミングターンを実行する。
// 返されるチャネルには部分チャンクが到着順に流れ、DoneまたはErrイベントで
// 終端した後ちょうど1回クローズされる。完全な応答テキストの保存は
// 終端イベントの送出前に非同期で開始されるため、呼び出し側は保存完了より
// わずかに早くストリーム完了を観測しうる。
// 呼び出し側が切断した場合（ctxキャンセル）は送出を速やかに停止し、
// それまでに蓄積した部分テキストをベストエフォートで保存する。
func (c *Coordinator) SendMessageStream(ctx context.Context, sessionID, userID, content string) (<-chan StreamEvent, error) {
	window, err := c.prepareTurn(ctx, sessionID, userID, content)
	if err != nil {
		return nil, err
	}

	c.collector.RecordStreamStarted()
	events := make(chan StreamEvent, streamBufferSize)

	go func() {
		defer close(events)

		var full strings.Builder
		start := time.Now()

		streamErr := c.completer.CompleteStream(ctx, window, func(chunk string) error {
			// バッファに空きがあってもキャンセル済みなら送出を止める
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			full.WriteString(chunk)
			select {
			case events <- StreamEvent{Chunk: chunk}:
				c.collector.RecordStreamChunk()
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		c.collector.RecordCompletionLatency(time.Since(start))

		if streamErr != nil {
			if errors.Is(streamErr, context.Canceled) || errors.Is(streamErr, context.DeadlineExceeded) {
				// 消費側の切断。部分テキストを失うよりは稀な重複書き込みを許容する
				slog.Info("stream consumer disconnected",
					slog.String("session_id", sessionID),
				)
				c.persistAssistantAsync(sessionID, full.String())
				return
			}

			c.collector.RecordStreamFailure()
			slog.Error("streaming completion failed",
				slog.String("session_id", sessionID),
				slog.String("error", streamErr.Error()),
			)
			// バッファが満杯のまま消費側が切断していると送出がブロックするため、
			// 終端イベントの送出は必ずctxキャンセルと競合させる
			select {
			case events <- StreamEvent{Err: model.NewUpstreamError()}:
			case <-ctx.Done():
			}
			return
		}

		// 保存は終端イベントの送出より先に行う。送出がキャンセルで
		// 打ち切られても完全な応答テキストは失われない
		c.persistAssistantAsync(sessionID, full.String())
		c.collector.RecordTurn()
		select {
		case events <- StreamEvent{Done: true}:
		case <-ctx.Done():
		}
	}()

	return events, nil
}

// prepareTurn は同期・ストリーミング共通の前半処理を行う。
// 認可、ユーザー発話の保存、コンテキストウィンドウの構築の順に実行する。
func (c *Coordinator) prepareTurn(ctx context.Context, sessionID, userID, content string) ([]Turn, error) {
	session, err := c.sessions.FindByIDAndUserID(ctx, sessionID, userID)
	if err != nil {
		return nil, storageError("find session", err)
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError(sessionID)
	}

	if _, err := c.messages.Append(ctx, sessionID, model.RoleUser, content); err != nil {
		return nil, storageError("persist user message", err)
	}

	window, err := c.windows.Build(ctx, sessionID)
	if err != nil {
		return nil, storageError("build context window", err)
	}

	return window, nil
}

// persistAssistantAsync は蓄積済みの応答テキストを非同期で保存する。
// リクエストコンテキストから独立したコンテキストを使い、失敗はログのみに
// 記録する（fire-and-forget）。空テキストは保存しない。
func (c *Coordinator) persistAssistantAsync(sessionID, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	go func() {
		pctx, cancel := context.WithTimeout(context.Background(), c.persistTimeout)
		defer cancel()

		if _, err := c.messages.Append(pctx, sessionID, model.RoleAssistant, text); err != nil {
			slog.Error("failed to persist assistant message after stream",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	}()
}

// noopCollector はメトリクス未設定時に使用する何もしない実装。
type noopCollector struct{}

func (noopCollector) RecordTurn()                                {}
func (noopCollector) RecordCompletionFailure()                   {}
func (noopCollector) RecordCompletionLatency(time.Duration)      {}
func (noopCollector) RecordStreamStarted()                       {}
func (noopCollector) RecordStreamChunk()                         {}
func (noopCollector) RecordStreamFailure()                       {}

package app

// Command はtimetrackバイナリのサブコマンド。
type Command string

const (
	// CommandServe はREST APIサーバーを起動する。
	CommandServe Command = "serve"
	// CommandWorker は長時間タスク監視と通知クリーンアップを実行する。
	CommandWorker Command = "worker"
	// CommandMigrate は埋め込みマイグレーションを適用して終了する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はローカルの /health を叩いて終了する。distrolessイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数なし・未知のサブコマンドはCommandServeとして扱い、2番目以降の引数は無視する。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}

// needsConfig は環境変数の読み込みとロガー初期化が必要かどうかを返す。
// healthcheckはDATABASE_URLを持たないコンテナ内でも動く必要がある。
func (c Command) needsConfig() bool {
	return c != CommandHealthcheck
}

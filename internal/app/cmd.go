package app

// Command はcastmanの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	// Webhook受信・番組CRUD・メディア生成パイプラインと、
	// インプロセスのカスケード反映キューを含む。
	CommandServe Command = "serve"
	// CommandWorker はワーカーモードで起動することを示す。
	// 作者フィールドの整合性修復ジョブを定期実行する。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーママイグレーションを適用して終了することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は/healthへの疎通確認を行って終了することを示す。
	// シェルを持たないdistrolessイメージのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "serve":
		return CommandServe
	case "worker":
		return CommandWorker
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

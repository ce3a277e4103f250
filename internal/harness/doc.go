// Package harness はシナリオ単位のフェイルセーフ実行を統括する。
//
// 1シナリオの流れ:
//
//  1. 封じ込めタイマーを開始し、リースを開く
//  2. 脅威ごとに1つのアクターを並行に起動する
//  3. アクターの開始イベントごとに検知モニターが TRIGGER を投票する
//  4. クォーラム成立またはリース期限切れでフェイルセーフを発火する
//  5. 封じ込めを実行し、全アクターの終了（合流バリア）を待つ
//  6. COMPLETED に遷移し、タイマーを止めて結果を作る
//
// シナリオは既定で順に実行する。Parallel > 1 では独立したモニター、
// リース、トリガー、ワーカープールで並行に実行するが、結果は読み込み順に
// Reporter へ記録する。
//
// ホストの起動とハートビートは最初の Run（または Boot）で1回だけ行い、
// 停止は Shutdown で1回だけ行う。Run をまたいで再起動しない。
//
// # 使用例
//
//	engine, err := harness.New(harness.DefaultConfig(), reporter)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Shutdown()
//	result, err := engine.Run(ctx, loaded.Scenarios)
package harness

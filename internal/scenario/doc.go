// Package scenario はシナリオファイルの読み込みとプリセットを提供する。
//
// シナリオファイルはルートが配列のJSON（または .yaml/.yml）で、
// 各要素は id, description, threats を持つ。
//
// # 読み込み規則
//
// - ファイルが読めない: ErrConfig（致命的）
// - 構文エラー、ルートが配列でない: ErrParse（致命的）
// - フィールドの欠落・型違い: 既定値で補い ErrValidation の警告
// - 件数上限の超過: 先頭N件に切り詰め ErrCapacityExceeded の警告
// - 重複ID: <id>_<n> に改名し ErrValidation の警告
//
// # プリセット
//
// - baseline: SC1（ransomware 500ms + dos_spike 200ms）
// - idle: 脅威なし（リース期限切れで発火）
// - saturation: 上限8件の同時脅威
// - mixed: 全脅威タイプ、時間差あり
//
// # 使用例
//
//	result, err := scenario.LoadFile("multi_threat_scenarios.json", scenario.DefaultLimits())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, w := range result.Warnings {
//	    fmt.Println(w)
//	}
package scenario

package auth

import "github.com/hitoshi/guildgate/internal/model"

// ResolveRole はギルドメンバーのロールID集合をアプリケーションロールに
// 解決する純粋関数。評価順序は固定であり、並べ替えてはならない:
//
//  1. Admin判定を最初に行う（常に到達可能。他のロールを持っていても
//     最上位権限が優先される）。
//  2. Evaluatorが設定されていて集合に含まれていればEVALUATOR。
//  3. Playerが設定されていて集合に含まれていればPLAYER。
//
// いずれにも該当しない場合は第2戻り値がfalseになる。ギルドには参加して
// いるが設定済みロールを1つも持たないケースで、"not in guild" とは
// 別の結果として扱う（対処方法が異なるため）。
func ResolveRole(roleIDs []string, m model.RoleMap) (model.Role, bool) {
	has := make(map[string]bool, len(roleIDs))
	for _, id := range roleIDs {
		has[id] = true
	}

	if m.Admin != "" && has[m.Admin] {
		return model.RoleAdmin, true
	}
	if m.Evaluator != "" && has[m.Evaluator] {
		return model.RoleEvaluator, true
	}
	if m.Player != "" && has[m.Player] {
		return model.RolePlayer, true
	}

	return "", false
}

package lint

import "testing"

func TestDeleteWithoutWhereIsDanger(t *testing.T) {
	warnings := Check("DELETE FROM users;", false)
	if !HasDanger(warnings) {
		t.Fatal("expected a Danger warning for DELETE without WHERE")
	}
}

func TestDeleteWithWhereIsClean(t *testing.T) {
	warnings := Check("DELETE FROM users WHERE id=1;", false)
	if HasDanger(warnings) {
		t.Errorf("expected no Danger warning, got %+v", warnings)
	}
}

func TestUpdateWithoutWhereIsDanger(t *testing.T) {
	warnings := Check("UPDATE users SET active=0", false)
	if !HasDanger(warnings) {
		t.Fatal("expected a Danger warning for UPDATE without WHERE")
	}
}

func TestImplicitJoinIsWarn(t *testing.T) {
	warnings := Check("SELECT * FROM a, b WHERE a.id = b.a_id", false)
	found := false
	for _, w := range warnings {
		if w.Severity == Warn {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a Warn for implicit join, got %+v", warnings)
	}
}

func TestDDLDuringActiveTransactionIsWarn(t *testing.T) {
	warnings := Check("CREATE TABLE t(id INTEGER)", true)
	found := false
	for _, w := range warnings {
		if w.Severity == Warn {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a Warn for DDL during active transaction, got %+v", warnings)
	}
}

func TestDDLOutsideTransactionIsClean(t *testing.T) {
	warnings := Check("CREATE TABLE t(id INTEGER)", false)
	if len(warnings) != 0 {
		t.Errorf("expected no warnings, got %+v", warnings)
	}
}

func TestSelectStarInSnippetIsInfo(t *testing.T) {
	warnings := CheckSnippet("SELECT * FROM users", false)
	found := false
	for _, w := range warnings {
		if w.Severity == Info {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an Info warning for SELECT * snippet, got %+v", warnings)
	}
}

func TestOrdinarySelectHasNoWarnings(t *testing.T) {
	warnings := Check("SELECT id FROM users WHERE id=1", false)
	if len(warnings) != 0 {
		t.Errorf("expected no warnings, got %+v", warnings)
	}
}

func TestHasDangerFalseOnEmpty(t *testing.T) {
	if HasDanger(nil) {
		t.Error("expected false for nil warnings")
	}
}

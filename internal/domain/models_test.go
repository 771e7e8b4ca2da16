package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.TempDir()+"/domain.db"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(ChemicalIdentity{}).TableName(): "chemical_identities",
		(SideEffect{}).TableName():       "side_effects",
		(SemanticEntry{}).TableName():    "semantic_entries",
		(Idempotency{}).TableName():      "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestMigrations_Indexes_JSONColumns_AndCascade(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&ChemicalIdentity{}, &SideEffect{}, &SemanticEntry{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	for _, idx := range []struct {
		model any
		name  string
	}{
		{&ChemicalIdentity{}, "ux_chemical_external_id"},
		{&ChemicalIdentity{}, "ux_chemical_name_key"},
		{&SideEffect{}, "ux_side_effect_chemical_effect"},
		{&SemanticEntry{}, "ux_semantic_cache_key"},
	} {
		if !m.HasIndex(idx.model, idx.name) {
			t.Fatalf("expected index %s on %T", idx.name, idx.model)
		}
	}

	now := time.Now().UTC()
	cid := int64(22311)
	chem := &ChemicalIdentity{
		ID: "c1", ExternalID: &cid, CommonName: "Limonene", NameKey: NormalizeName("Limonene"),
		Synonyms: []string{"D-Limonene", "138-86-3"}, OxidationProducts: []string{"limonene hydroperoxide"},
		CreatedAt: now, UpdatedAt: now,
	}
	if err := db.Create(chem).Error; err != nil {
		t.Fatalf("insert chemical: %v", err)
	}

	// Same name key under a different casing must be rejected.
	dup := &ChemicalIdentity{ID: "c2", CommonName: "LIMONENE", NameKey: NormalizeName("LIMONENE"), CreatedAt: now, UpdatedAt: now}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected unique violation on name key")
	}

	p := 0.05
	doi := "10.1111/j.1600-0536.2007.01234.x"
	se := &SideEffect{
		ID: "s1", ChemicalID: "c1", Effect: "Allergic Contact Dermatitis", EffectKey: "allergic contact dermatitis",
		Severity: SeverityModerate, PrevalenceRate: &p,
		AffectedBodyAreas:  []string{"hands", "face"},
		Sources:            []SourceReference{{DOI: doi, StudyType: "Literature Review"}},
		VerificationStatus: Verified, ConfidenceScore: 85, CreatedAt: now,
	}
	if err := db.Create(se).Error; err != nil {
		t.Fatalf("insert side effect: %v", err)
	}

	var got SideEffect
	if err := db.First(&got, "id = ?", "s1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if len(got.AffectedBodyAreas) != 2 || got.AffectedBodyAreas[1] != "face" {
		t.Fatalf("body areas roundtrip = %v", got.AffectedBodyAreas)
	}
	if len(got.Sources) != 1 || got.Sources[0].DOI != doi {
		t.Fatalf("sources roundtrip = %+v", got.Sources)
	}

	var gotChem ChemicalIdentity
	if err := db.First(&gotChem, "id = ?", "c1").Error; err != nil {
		t.Fatalf("readback chemical: %v", err)
	}
	if len(gotChem.Synonyms) != 2 || gotChem.OxidationProducts[0] != "limonene hydroperoxide" {
		t.Fatalf("chemical lists roundtrip = %+v", gotChem)
	}

	// CASCADE: deleting the identity removes its side effects.
	if err := db.Delete(&ChemicalIdentity{}, "id = ?", "c1").Error; err != nil {
		t.Fatalf("delete chemical: %v", err)
	}
	var cnt int64
	if err := db.Model(&SideEffect{}).Where("chemical_id = ?", "c1").Count(&cnt).Error; err != nil {
		t.Fatalf("count side effects: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected side effects to cascade-delete, got %d", cnt)
	}
}

func TestResolved(t *testing.T) {
	var nilChem *ChemicalIdentity
	if nilChem.Resolved() {
		t.Fatalf("nil identity must not be resolved")
	}
	if (&ChemicalIdentity{CommonName: "x"}).Resolved() {
		t.Fatalf("identity without ID must not be resolved")
	}
	if !(&ChemicalIdentity{ID: "abc"}).Resolved() {
		t.Fatalf("identity with ID must be resolved")
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("  Benzyl   Alcohol \t"); got != "benzyl alcohol" {
		t.Fatalf("NormalizeName = %q", got)
	}
	if got := NormalizeName(""); got != "" {
		t.Fatalf("NormalizeName(empty) = %q", got)
	}
}

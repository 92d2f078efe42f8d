package filter_test

import (
	"testing"

	"github.com/azure-patch/linux-patch-core/internal/filter"
	"github.com/azure-patch/linux-patch-core/internal/models"
)

func TestIncludedByClassification(t *testing.T) {
	f, err := filter.New(nil, nil, []models.Classification{models.ClassificationSecurity})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	secPkg := models.Package{Name: "openssl", Classifications: []models.Classification{models.ClassificationSecurity}}
	otherPkg := models.Package{Name: "vim", Classifications: []models.Classification{models.ClassificationOther}}

	if !f.Included(secPkg, nil) {
		t.Errorf("security package should be included")
	}
	if f.Included(otherPkg, nil) {
		t.Errorf("other package should not be included when only Security selected")
	}
}

func TestExcludeAppliedLastAndWinsOverInclude(t *testing.T) {
	f, err := filter.New([]string{"openssl*"}, []string{"openssl*"}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	pkg := models.Package{Name: "openssl-libs"}
	if f.Included(pkg, nil) {
		t.Errorf("package matching both include and exclude should be excluded")
	}
}

func TestExcludeMatchesDependency(t *testing.T) {
	f, err := filter.New(nil, []string{"libc*"}, []models.Classification{
		models.ClassificationCritical, models.ClassificationSecurity, models.ClassificationOther,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	pkg := models.Package{Name: "app"}
	if f.Included(pkg, []string{"libc6"}) {
		t.Errorf("package should be excluded when a dependency matches an exclude mask")
	}
}

func TestInclusionListIgnoredWhenAllClassificationsSelected(t *testing.T) {
	f, err := filter.New([]string{"only-this-one"}, nil, []models.Classification{
		models.ClassificationCritical, models.ClassificationSecurity, models.ClassificationOther,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	pkg := models.Package{Name: "not-in-the-include-list"}
	if !f.Included(pkg, nil) {
		t.Errorf("inclusion list should be ignored once all classifications are selected")
	}
}

func TestInvalidClassificationCombination(t *testing.T) {
	_, err := filter.New(nil, nil, []models.Classification{
		models.ClassificationUnclassified, models.ClassificationCritical,
	})
	if err == nil {
		t.Fatalf("expected error combining Unclassified with a real classification")
	}
}

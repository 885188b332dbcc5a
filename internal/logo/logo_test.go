package logo

import "testing"

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"TF1":              "tf1",
		"France 2":         "france-2",
		"Canal+ Sport":     "canal-sport",
		"RMC (Découverte)": "rmc-dcouverte",
		"Arte & Culture":   "arte-and-culture",
		"M6  -  Music":     "m6-music",
		"BFM\tTV":          "bfm-tv",
		"Télé-Loisirs":     "tl-loisirs",
		"2M Maroc":         "2m-maroc",
		"C8_HD":            "c8_hd",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q)=%q want %q", in, got, want)
		}
	}
}

func TestResolve(t *testing.T) {
	r := NewResolver("france", "fr")
	got, ok := r.Resolve("France 2")
	if !ok || got != "https://raw.githubusercontent.com/tv-logo/tv-logos/main/countries/france/france-2-fr.png" {
		t.Fatalf("Resolve(France 2)=%q,%v", got, ok)
	}
	got, ok = r.Resolve("2M Maroc")
	if !ok || got != "https://raw.githubusercontent.com/tv-logo/tv-logos/main/countries/morocco/2m-maroc-ma.png" {
		t.Fatalf("Resolve(2M Maroc)=%q,%v", got, ok)
	}
	if _, ok := r.Resolve(""); ok {
		t.Fatal("empty name should not resolve")
	}
	if _, ok := r.Resolve("ééé"); ok {
		t.Fatal("name with empty slug should not resolve")
	}
}

func TestResolve_zeroValue(t *testing.T) {
	var r Resolver
	got, ok := r.Resolve("Arte")
	if !ok || got != DefaultBaseURL+"/france/arte-fr.png" {
		t.Fatalf("zero Resolver: %q,%v", got, ok)
	}
}

package memory

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"words", "Hello, World!", []string{"hello", "world"}},
		{"underscore and digits", "run_tool 42 times", []string{"run_tool", "42", "times"}},
		{"cjk per rune", "你好世界", []string{"你", "好", "世", "界"}},
		{"mixed script", "打开browser看news", []string{"打", "开", "browser", "看", "news"}},
		{"empty", "", nil},
		{"punctuation only", "!?...", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tokenize(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestBM25RanksTermFrequency(t *testing.T) {
	corpus := []string{
		"alpha beta gamma",
		"alpha alpha alpha delta",
		"completely unrelated words here",
	}
	idx := newBM25(corpus)

	hits := idx.search("alpha", 10)
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2: %+v", len(hits), hits)
	}
	if hits[0].index != 1 {
		t.Errorf("top hit = doc %d, want the repeated-term doc", hits[0].index)
	}
	if hits[0].score <= hits[1].score {
		t.Errorf("scores not descending: %v", hits)
	}
}

func TestBM25RareTermsWeighHeavier(t *testing.T) {
	corpus := []string{
		"the project lives in the repo",
		"the weather is nice",
		"zyzzyva appears once",
	}
	idx := newBM25(corpus)

	common := idx.search("the", 10)
	rare := idx.search("zyzzyva", 10)
	if len(rare) != 1 {
		t.Fatalf("rare term hits = %d, want 1", len(rare))
	}
	if len(common) > 0 && common[0].score >= rare[0].score {
		t.Errorf("common term scored %f, rare term %f", common[0].score, rare[0].score)
	}
}

func TestBM25NoMatch(t *testing.T) {
	idx := newBM25([]string{"alpha beta", "gamma delta"})
	if hits := idx.search("omega", 10); len(hits) != 0 {
		t.Errorf("got %d hits for absent term", len(hits))
	}
}

func TestBM25TopKClamp(t *testing.T) {
	corpus := []string{"x a", "x b", "x c", "x d"}
	idx := newBM25(corpus)
	if hits := idx.search("x", 2); len(hits) != 2 {
		t.Errorf("got %d hits, want 2", len(hits))
	}
}

func TestBM25CJKQuery(t *testing.T) {
	corpus := []string{
		"项目文件在服务器上",
		"today the weather is sunny",
	}
	idx := newBM25(corpus)
	hits := idx.search("服务器", 5)
	if len(hits) != 1 || hits[0].index != 0 {
		t.Errorf("CJK query hits = %+v", hits)
	}
}

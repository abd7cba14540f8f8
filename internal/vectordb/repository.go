package vectordb

import (
	"fmt"
	"math"
	"sort"
)

// ValidateVector 校验向量非空且维度与集合一致
func ValidateVector(vector []float32, expectedDim int) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}
	if len(vector) != expectedDim {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidDimension, len(vector), expectedDim)
	}
	return nil
}

// ComputeDistance 按指定度量计算两个向量的距离
// 余弦距离为1-相似度，点积直接返回，l2为欧氏距离
func ComputeDistance(v1, v2 []float32, distType DistanceType) (float32, error) {
	if len(v1) != len(v2) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrInvalidDimension, len(v1), len(v2))
	}

	switch distType {
	case Cosine:
		n1, n2 := vectorNorm(v1), vectorNorm(v2)
		if n1 == 0 || n2 == 0 {
			// 零向量与任何向量都不相似
			return 1, nil
		}
		sim := dotProduct(v1, v2) / (n1 * n2)
		// 浮点误差可能让相似度略微越界
		if sim > 1 {
			sim = 1
		} else if sim < -1 {
			sim = -1
		}
		return 1 - sim, nil
	case DotProduct:
		return dotProduct(v1, v2), nil
	case Euclidean:
		var sum float64
		for i := range v1 {
			d := float64(v1[i] - v2[i])
			sum += d * d
		}
		return float32(math.Sqrt(sum)), nil
	default:
		return 0, fmt.Errorf("unsupported distance type: %s", distType)
	}
}

// DistanceToScore 将距离映射到[0,1]的相似度得分，越大越相似
// 得分只要求在单个集合内单调一致，不同度量间不可比
func DistanceToScore(distance float32, distType DistanceType) float32 {
	switch distType {
	case Cosine:
		return 1 - distance
	case DotProduct:
		// 归一化向量的点积落在[-1,1]
		return (distance + 1) / 2
	case Euclidean:
		// 指数衰减，零距离映射到满分
		return float32(math.Exp(-float64(distance)))
	default:
		return 0
	}
}

// innerProductToCosineDistance 把内积度量的检索结果换算成余弦距离
// 归一化向量的内积就是余弦相似度（越大越近），而打分约定的是
// 距离（越小越近）；浮点误差可能让相似度略微越界，先钳制再换算
func innerProductToCosineDistance(ip float32) float32 {
	if ip > 1 {
		ip = 1
	} else if ip < -1 {
		ip = -1
	}
	return 1 - ip
}

func dotProduct(v1, v2 []float32) float32 {
	var dot float64
	for i := range v1 {
		dot += float64(v1[i]) * float64(v2[i])
	}
	return float32(dot)
}

func vectorNorm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// normalizeVector 返回单位长度的副本，零向量原样返回
func normalizeVector(v []float32) []float32 {
	norm := vectorNorm(v)
	if norm == 0 {
		return v
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// rankedResult 附带插入序号的检索结果
// 得分并列时按插入顺序保持稳定排序
type rankedResult struct {
	result SearchResult
	seq    int
}

func sortRankedResults(results []rankedResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].result.Score != results[j].result.Score {
			return results[i].result.Score > results[j].result.Score
		}
		return results[i].seq < results[j].seq
	})
}

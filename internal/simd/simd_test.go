package simd

import (
	"testing"
)

func TestVecAddInto(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5}
	b := []float32{10, 20, 30, 40, 50}
	dst := make([]float32, 5)
	expected := []float32{11, 22, 33, 44, 55}

	VecAddInto(dst, a, b)

	for i, v := range dst {
		if v != expected[i] {
			t.Errorf("VecAddInto(%d) = %f, want %f", i, v, expected[i])
		}
	}
}

func TestVecSubInto(t *testing.T) {
	a := []float32{10, 20, 30, 40, 50}
	b := []float32{1, 2, 3, 4, 5}
	dst := make([]float32, 5)
	expected := []float32{9, 18, 27, 36, 45}

	VecSubInto(dst, a, b)

	for i, v := range dst {
		if v != expected[i] {
			t.Errorf("VecSubInto(%d) = %f, want %f", i, v, expected[i])
		}
	}
}

func TestVecAdd(t *testing.T) {
	dst := []float32{1, 2, 3, 4, 5}
	src := []float32{10, 20, 30, 40, 50}
	expected := []float32{11, 22, 33, 44, 55}

	VecAdd(dst, src)

	for i, v := range dst {
		if v != expected[i] {
			t.Errorf("VecAdd(%d) = %f, want %f", i, v, expected[i])
		}
	}
}

func TestVecScale(t *testing.T) {
	dst := []float32{1, 2, 3, 4, 5}
	expected := []float32{2, 4, 6, 8, 10}

	VecScale(dst, 2.0)

	for i, v := range dst {
		if v != expected[i] {
			t.Errorf("VecScale(%d) = %f, want %f", i, v, expected[i])
		}
	}
}

func TestDotProduct(t *testing.T) {
	a := []float32{1, 2, 3, 4, 5}
	b := []float32{2, 3, 4, 5, 6}
	// 2 + 6 + 12 + 20 + 30 = 70
	expected := float32(70.0)

	result := DotProduct(a, b)

	if result != expected {
		t.Errorf("DotProduct = %f, want %f", result, expected)
	}
}

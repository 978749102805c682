package amd64

// Generated address-getter declarations for the per-vector stubs defined
// in trap_vectors_amd64.s, following the same no-body-plus-assembly
// pattern as threadBootstrapAddr (context_amd64.go): Go cannot take the
// code address of a function value directly, so each stub gets a tiny
// asm accessor that returns its own address.

func vec0Addr() uintptr
func vec1Addr() uintptr
func vec2Addr() uintptr
func vec3Addr() uintptr
func vec4Addr() uintptr
func vec5Addr() uintptr
func vec6Addr() uintptr
func vec7Addr() uintptr
func vec8Addr() uintptr
func vec9Addr() uintptr
func vec10Addr() uintptr
func vec11Addr() uintptr
func vec12Addr() uintptr
func vec13Addr() uintptr
func vec14Addr() uintptr
func vec15Addr() uintptr
func vec16Addr() uintptr
func vec17Addr() uintptr
func vec18Addr() uintptr
func vec19Addr() uintptr
func vec20Addr() uintptr
func vec21Addr() uintptr
func vec22Addr() uintptr
func vec23Addr() uintptr
func vec24Addr() uintptr
func vec25Addr() uintptr
func vec26Addr() uintptr
func vec27Addr() uintptr
func vec28Addr() uintptr
func vec29Addr() uintptr
func vec30Addr() uintptr
func vec31Addr() uintptr
func vec32Addr() uintptr
func vec33Addr() uintptr
func vec34Addr() uintptr
func vec35Addr() uintptr
func vec36Addr() uintptr
func vec37Addr() uintptr
func vec38Addr() uintptr
func vec39Addr() uintptr
func vec40Addr() uintptr
func vec41Addr() uintptr
func vec42Addr() uintptr
func vec43Addr() uintptr
func vec44Addr() uintptr
func vec45Addr() uintptr
func vec46Addr() uintptr
func vec47Addr() uintptr
func vec128Addr() uintptr

// vectorStubAddr maps an IDT vector number to its stub entry address, for
// every vector installIDT populates.
var vectorStubAddr = map[int]func() uintptr{
	0: vec0Addr,
	1: vec1Addr,
	2: vec2Addr,
	3: vec3Addr,
	4: vec4Addr,
	5: vec5Addr,
	6: vec6Addr,
	7: vec7Addr,
	8: vec8Addr,
	9: vec9Addr,
	10: vec10Addr,
	11: vec11Addr,
	12: vec12Addr,
	13: vec13Addr,
	14: vec14Addr,
	15: vec15Addr,
	16: vec16Addr,
	17: vec17Addr,
	18: vec18Addr,
	19: vec19Addr,
	20: vec20Addr,
	21: vec21Addr,
	22: vec22Addr,
	23: vec23Addr,
	24: vec24Addr,
	25: vec25Addr,
	26: vec26Addr,
	27: vec27Addr,
	28: vec28Addr,
	29: vec29Addr,
	30: vec30Addr,
	31: vec31Addr,
	32: vec32Addr,
	33: vec33Addr,
	34: vec34Addr,
	35: vec35Addr,
	36: vec36Addr,
	37: vec37Addr,
	38: vec38Addr,
	39: vec39Addr,
	40: vec40Addr,
	41: vec41Addr,
	42: vec42Addr,
	43: vec43Addr,
	44: vec44Addr,
	45: vec45Addr,
	46: vec46Addr,
	47: vec47Addr,
	128: vec128Addr,
}


package jmt

// getNibbleAt 获取路径中指定位置的 nibble（高 4 位在前）
func getNibbleAt(path []byte, position int) byte {
	byteIndex := position / 2
	if position%2 == 0 {
		return path[byteIndex] >> 4
	}
	return path[byteIndex] & 0x0F
}

// nibbleSlice 提取 [start, end) 范围的 nibble，每个 nibble 占一个字节
func nibbleSlice(path []byte, start, end int) []byte {
	if start >= end {
		return nil
	}
	result := make([]byte, end-start)
	for i := start; i < end; i++ {
		result[i-start] = getNibbleAt(path, i)
	}
	return result
}

// nibblesToBytes 把 nibble 两两打包成字节，奇数个时最后一个字节低 4 位为 0
func nibblesToBytes(nibbles []byte) []byte {
	result := make([]byte, (len(nibbles)+1)/2)
	for i, n := range nibbles {
		if i%2 == 0 {
			result[i/2] = n << 4
		} else {
			result[i/2] |= n
		}
	}
	return result
}
